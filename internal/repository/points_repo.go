package repository

import (
	"context"
	"errors"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"

	"gorm.io/gorm"
)

// ErrUserInactive is returned when a balance update targets a disabled account.
var ErrUserInactive = errors.New("user is inactive")

// PointsRepository owns points_ledger rows and the users.points balance they sum to.
type PointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(db *gorm.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

func (r *PointsRepository) WithTx(tx *gorm.DB) *PointsRepository {
	return &PointsRepository{db: tx}
}

// Transaction runs fn inside one database transaction.
func (r *PointsRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *PointsRepository) InsertEntry(ctx context.Context, e *models.PointsLedgerEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// Increment adds delta to an active user's balance with a single UPDATE so concurrent
// awards never lose an increment. It returns the row with the new balance and the
// level stored before this award.
func (r *PointsRepository) Increment(ctx context.Context, userID uint, delta int) (*models.User, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.User{}).
		Where("id = ? AND active = ?", userID, true).
		UpdateColumn("points", gorm.Expr("points + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserInactive
	}
	var u models.User
	if err := db.Select("id", "points", "level").First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PointsRepository) SetLevel(ctx context.Context, userID uint, level int) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).UpdateColumn("level", level).Error
}

func (r *PointsRepository) Balance(ctx context.Context, userID uint) (int, error) {
	var u models.User
	err := r.db.WithContext(ctx).Select("id", "points").First(&u, userID).Error
	return u.Points, err
}

// History returns entries newest first.
func (r *PointsRepository) History(ctx context.Context, userID uint, limit, offset int) ([]models.PointsLedgerEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.PointsLedgerEntry{}).Where("user_id = ?", userID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.PointsLedgerEntry
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// HasReportEntry reports whether a report already earned points for the action.
func (r *PointsRepository) HasReportEntry(ctx context.Context, reportID uint, action domain.ActionType) (bool, error) {
	var c int64
	err := r.db.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Where("report_id = ? AND action = ?", reportID, action).
		Count(&c).Error
	return c > 0, err
}

func (r *PointsRepository) LedgerSum(ctx context.Context, userID uint) (int, error) {
	var sum struct{ Total int }
	err := r.db.WithContext(ctx).Model(&models.PointsLedgerEntry{}).
		Select("COALESCE(SUM(delta), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return sum.Total, err
}

type LedgerMismatch struct {
	UserID    uint `json:"usuario_id"`
	Points    int  `json:"puntos"`
	LedgerSum int  `json:"suma_historial"`
}

// Mismatches lists users whose balance differs from their ledger sum.
func (r *PointsRepository) Mismatches(ctx context.Context) ([]LedgerMismatch, error) {
	var rows []LedgerMismatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT u.id AS user_id, u.points AS points, COALESCE(l.total, 0) AS ledger_sum
		FROM users u
		LEFT JOIN (SELECT user_id, SUM(delta) AS total FROM points_ledger GROUP BY user_id) l
			ON l.user_id = u.id
		WHERE u.points <> COALESCE(l.total, 0)
		ORDER BY u.id`).Scan(&rows).Error
	return rows, err
}
