package repository

import (
	"context"

	"ecoreports/internal/models"

	"gorm.io/gorm"
)

type AchievementRepository struct {
	db *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

func (r *AchievementRepository) WithTx(tx *gorm.DB) *AchievementRepository {
	return &AchievementRepository{db: tx}
}

func (r *AchievementRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *AchievementRepository) ListActive(ctx context.Context) ([]models.Achievement, error) {
	var list []models.Achievement
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *AchievementRepository) IsUnlocked(ctx context.Context, userID, achievementID uint, milestone int) (bool, error) {
	var c int64
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ? AND milestone = ?", userID, achievementID, milestone).
		Count(&c).Error
	return c > 0, err
}

func (r *AchievementRepository) Unlock(ctx context.Context, ua *models.UserAchievement) error {
	return r.db.WithContext(ctx).Create(ua).Error
}

// ListUnlocked returns a user's unlocks with their catalog rows, newest first.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	var list []models.UserAchievement
	err := r.db.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC, id DESC").
		Find(&list).Error
	return list, err
}

// UnlockedMilestones returns the milestones a user already holds for one achievement.
func (r *AchievementRepository) UnlockedMilestones(ctx context.Context, userID, achievementID uint) (map[int]bool, error) {
	var ms []int
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Pluck("milestone", &ms).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(ms))
	for _, m := range ms {
		out[m] = true
	}
	return out, nil
}
