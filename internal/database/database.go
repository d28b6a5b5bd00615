package database

import (
	"errors"
	"strings"

	"ecoreports/config"
	"ecoreports/internal/domain"
	"ecoreports/internal/models"

	"github.com/apex/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Report{},
		&models.PointsLedgerEntry{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.Notification{},
		&models.SystemSetting{},
		&models.AuditLog{},
	)
}

// DefaultAchievements is the badge catalog. Count badges fire once at an exact report
// count; problem_solver fires at every positive multiple of its threshold.
var DefaultAchievements = []models.Achievement{
	{
		Key:         domain.AchievementFirstReport,
		Name:        "Primer reporte",
		Description: "Enviaste tu primer reporte",
		Icon:        "🌱",
		Metric:      domain.MetricReports,
		Match:       domain.MatchAtLeast,
		Threshold:   1,
	},
	{
		Key:         domain.AchievementActiveReporter,
		Name:        "Reportero activo",
		Description: "Enviaste 5 reportes",
		Icon:        "📣",
		Metric:      domain.MetricReports,
		Match:       domain.MatchExactly,
		Threshold:   5,
	},
	{
		Key:         domain.AchievementCommittedReporter,
		Name:        "Reportero comprometido",
		Description: "Enviaste 10 reportes",
		Icon:        "🏅",
		Metric:      domain.MetricReports,
		Match:       domain.MatchExactly,
		Threshold:   10,
	},
	{
		Key:         domain.AchievementProblemSolver,
		Name:        "Solucionador",
		Description: "Cada 5 reportes tuyos resueltos",
		Icon:        "🧹",
		Metric:      domain.MetricResolved,
		Match:       domain.MatchEvery,
		Threshold:   5,
		Recurring:   true,
	},
}

// SeedAchievements upserts the catalog by key so copy changes reach existing rows.
func SeedAchievements(db *gorm.DB) error {
	for _, a := range DefaultAchievements {
		a := a
		a.Active = true
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "achievement_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "metric", "match_kind", "threshold", "recurring", "updated_at"}),
		}).Create(&a).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// SeedAdmin creates the first admin account if it does not exist yet.
func SeedAdmin(db *gorm.DB, cfg *config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := db.Create(&models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Administrador",
		Role:         domain.RoleAdmin,
		Level:        1,
		Active:       true,
	}).Error; err != nil {
		return err
	}
	log.WithField("email", email).Info("seeded admin account")
	return nil
}
