package models

import (
	"time"

	"ecoreports/internal/domain"
)

type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Email        string      `gorm:"uniqueIndex;size:255;not null" json:"email"` // stored lower-cased
	PasswordHash string      `gorm:"size:255" json:"-"`
	Name         string      `gorm:"size:120;not null" json:"nombre"`
	Role         domain.Role `gorm:"size:20;not null;index" json:"rol"`
	Points       int         `gorm:"not null;default:0" json:"puntos"`
	Level        int         `gorm:"not null;default:1" json:"nivel"`
	Active       bool        `gorm:"not null;default:true;index" json:"activo"`
	GoogleID     *string     `gorm:"uniqueIndex;size:255" json:"-"` // nil for email signups
	AvatarURL    string      `gorm:"size:512" json:"avatar_url"`
	FCMToken     string      `gorm:"size:512" json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool           { return u.Role == domain.RoleAdmin }
func (u *User) CanTriage() bool         { return u.Role.CanTriage() }
func (u *User) LevelInfo() domain.Level { return domain.LevelFor(u.Points) }
