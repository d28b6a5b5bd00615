package repository

import (
	"context"
	"time"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"

	"gorm.io/gorm"
)

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// WithTx returns a copy bound to an open transaction.
func (r *ReportRepository) WithTx(tx *gorm.DB) *ReportRepository {
	return &ReportRepository{db: tx}
}

func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// GetByID returns an active report.
func (r *ReportRepository) GetByID(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

type ReportFilter struct {
	UserID *uint
	Status domain.ReportStatus
	Page   int
	Limit  int
}

func (r *ReportRepository) List(ctx context.Context, f ReportFilter) ([]models.Report, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Report{}).Where("active = ?", true)
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Report
	err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Offset((f.Page - 1) * f.Limit).Find(&list).Error
	return list, total, err
}

// InBoundingBox returns active reports inside a lat/lng box; callers refine by distance.
func (r *ReportRepository) InBoundingBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64, limit int) ([]models.Report, error) {
	var list []models.Report
	err := r.db.WithContext(ctx).
		Where("active = ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", true, minLat, maxLat, minLng, maxLng).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

type CellPoint struct {
	CellToken string
	Latitude  float64
	Longitude float64
}

// OpenCells returns cell tokens and coordinates of reports still awaiting action.
func (r *ReportRepository) OpenCells(ctx context.Context) ([]CellPoint, error) {
	var rows []CellPoint
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Select("cell_token, latitude, longitude").
		Where("active = ? AND status IN ?", true, []domain.ReportStatus{domain.StatusReported, domain.StatusInProgress}).
		Scan(&rows).Error
	return rows, err
}

type TransitionFields struct {
	AuthorityID uint
	Comment     string
	At          time.Time
}

// Transition moves a report from -> to only if it is still in from. It returns false
// when another request already moved it.
func (r *ReportRepository) Transition(ctx context.Context, id uint, from, to domain.ReportStatus, f TransitionFields) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": f.At,
	}
	if to.IsTerminal() {
		updates["resolved_at"] = f.At
	}
	if f.Comment != "" {
		updates["authority_comment"] = f.Comment
	}
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ? AND active = ?", id, from, true).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if f.AuthorityID != 0 {
		err := r.db.WithContext(ctx).Model(&models.Report{}).
			Where("id = ? AND assigned_authority_id IS NULL", id).
			Update("assigned_authority_id", f.AuthorityID).Error
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *ReportRepository) SoftDelete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Update("active", false).Error
}

type UserReportStats struct {
	Total    int64 `json:"total_reportes"`
	Resolved int64 `json:"reportes_resueltos"`
}

// StatsForUser counts active reports and resolved ones.
func (r *ReportRepository) StatsForUser(ctx context.Context, userID uint) (UserReportStats, error) {
	var s UserReportStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Report{}).Where("user_id = ? AND active = ?", userID, true).Count(&s.Total).Error; err != nil {
		return s, err
	}
	err := db.Model(&models.Report{}).Where("user_id = ? AND active = ? AND status = ?", userID, true, domain.StatusResolved).Count(&s.Resolved).Error
	return s, err
}
