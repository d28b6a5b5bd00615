package models

import (
	"time"

	"ecoreports/internal/domain"
)

// Achievement is a catalog entry. Metric is one of reports, resolved or points and
// Match one of at_least, exactly or every.
type Achievement struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	Key         domain.AchievementKey `gorm:"column:achievement_key;uniqueIndex;size:50;not null" json:"clave"`
	Name        string                `gorm:"size:100;not null" json:"nombre"`
	Description string                `gorm:"size:255" json:"descripcion"`
	Icon        string                `gorm:"size:50" json:"icono"`
	Metric      string                `gorm:"size:30;not null" json:"metrica"`
	Match       string                `gorm:"column:match_kind;size:20;not null" json:"condicion"`
	Threshold   int                   `gorm:"not null" json:"umbral"`
	Recurring   bool                  `gorm:"not null;default:false" json:"recurrente"`
	Active      bool                  `gorm:"not null;default:true" json:"activo"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievement records an unlock. One-shot achievements always use milestone 1;
// recurring ones store the stat value that triggered them.
type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_user_achievement_milestone" json:"usuario_id"`
	AchievementID uint      `gorm:"not null;uniqueIndex:idx_user_achievement_milestone" json:"logro_id"`
	Milestone     int       `gorm:"not null;uniqueIndex:idx_user_achievement_milestone" json:"hito"`
	UnlockedAt    time.Time `gorm:"not null" json:"desbloqueado_en"`

	Achievement Achievement `gorm:"foreignKey:AchievementID" json:"logro"`
}

func (UserAchievement) TableName() string {
	return "user_achievements"
}
