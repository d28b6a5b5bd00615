package repository

import (
	"context"
	"errors"
	"strings"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail matches case-insensitively; emails are stored lower-cased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AccountStatus returns the current active flag and role. A missing user is
// reported as inactive.
func (r *UserRepository) AccountStatus(ctx context.Context, id uint) (bool, domain.Role, error) {
	var u models.User
	err := r.db.WithContext(ctx).Select("id", "active", "role").First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "", nil
	}
	return u.Active, u.Role, err
}

// SetPasswordHash writes only the hash column so concurrent balance or status
// changes are left alone.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id uint, hash string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

// LinkGoogle attaches a Google id and fills the avatar only when none is set.
func (r *UserRepository) LinkGoogle(ctx context.Context, id uint, googleID, avatarURL string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("id = ?", id).Update("google_id", googleID).Error; err != nil {
		return err
	}
	if avatarURL == "" {
		return nil
	}
	return db.Model(&models.User{}).Where("id = ? AND avatar_url = ?", id, "").Update("avatar_url", avatarURL).Error
}

func (r *UserRepository) SetActive(ctx context.Context, id uint, active bool) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("active", active)
	return res.RowsAffected, res.Error
}

func (r *UserRepository) SetRole(ctx context.Context, id uint, role domain.Role) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	return res.RowsAffected, res.Error
}

func (r *UserRepository) SetFCMToken(ctx context.Context, id uint, token string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token).Error
}

// ActiveIDsByRole returns ids of active users holding any of the roles.
func (r *UserRepository) ActiveIDsByRole(ctx context.Context, roles ...domain.Role) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("active = ? AND role IN ?", true, roles).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// List returns users with search, role filter, and pagination.
func (r *UserRepository) List(ctx context.Context, search string, role domain.Role, page, limit int) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		q = q.Where("name LIKE ? OR email LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	return users, total, err
}

type LeaderboardRow struct {
	Rank      int    `json:"posicion"`
	UserID    uint   `json:"usuario_id"`
	Name      string `json:"nombre"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Points    int    `json:"puntos"`
	Level     int    `json:"nivel"`
}

// Leaderboard ranks active citizens by points; ties go to the earlier account.
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("active = ? AND role = ?", true, domain.RoleCitizen).
		Order("points DESC, id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	rows := make([]LeaderboardRow, 0, len(users))
	for i, u := range users {
		rows = append(rows, LeaderboardRow{
			Rank:      i + 1,
			UserID:    u.ID,
			Name:      u.Name,
			AvatarURL: u.AvatarURL,
			Points:    u.Points,
			Level:     u.Level,
		})
	}
	return rows, nil
}

// RankOf returns the 1-based leaderboard position of a citizen.
func (r *UserRepository) RankOf(ctx context.Context, u *models.User) (int, error) {
	var ahead int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("active = ? AND role = ?", true, domain.RoleCitizen).
		Where("points > ? OR (points = ? AND id < ?)", u.Points, u.Points, u.ID).
		Count(&ahead).Error
	return int(ahead) + 1, err
}

// FCMTokens returns the push token of every listed user that has one.
func (r *UserRepository) FCMTokens(ctx context.Context, ids []uint) (map[uint]string, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Select("id", "fcm_token").
		Where("id IN ? AND fcm_token <> ?", ids, "").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]string, len(users))
	for _, u := range users {
		out[u.ID] = u.FCMToken
	}
	return out, nil
}
