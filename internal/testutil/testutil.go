// Package testutil builds throwaway SQLite-backed databases for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"ecoreports/internal/database"
	"ecoreports/internal/domain"
	"ecoreports/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory database with the schema migrated and the
// achievement catalog seeded. A single connection serializes concurrent callers the
// way row locks would on MySQL.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ecoreports_test_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.SeedAchievements(db); err != nil {
		t.Fatalf("seed achievements: %v", err)
	}
	return db
}

var userSeq atomic.Int64

// CreateUser inserts an active user with the given role.
func CreateUser(t testing.TB, db *gorm.DB, role domain.Role) *models.User {
	t.Helper()
	n := userSeq.Add(1)
	u := &models.User{
		Email:  fmt.Sprintf("user%d@example.com", n),
		Name:   fmt.Sprintf("Usuario %d", n),
		Role:   role,
		Level:  1,
		Active: true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Deactivate flips the active flag off. Create cannot do it because the column
// default would replace a zero value.
func Deactivate(t testing.TB, db *gorm.DB, u *models.User) {
	t.Helper()
	if err := db.Model(u).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	u.Active = false
}

// CreateReport inserts an active report in the given state.
func CreateReport(t testing.TB, db *gorm.DB, userID uint, status domain.ReportStatus) *models.Report {
	t.Helper()
	r := &models.Report{
		UserID:      userID,
		Description: "Hay basura acumulada en la esquina",
		Latitude:    -17.78,
		Longitude:   -63.16,
		Status:      status,
		Active:      true,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create report: %v", err)
	}
	return r
}
