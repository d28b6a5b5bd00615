package models

import (
	"time"

	"ecoreports/internal/domain"

	"gorm.io/datatypes"
)

type Notification struct {
	ID        uint                    `gorm:"primaryKey" json:"id"`
	UserID    uint                    `gorm:"not null;index:idx_notifications_user_created" json:"usuario_id"`
	Type      domain.NotificationType `gorm:"size:30;not null;index" json:"tipo"`
	Title     string                  `gorm:"size:255" json:"titulo"`
	Body      string                  `gorm:"type:text" json:"mensaje"`
	Payload   datatypes.JSON          `json:"datos,omitempty"`
	ReportID  *uint                   `gorm:"index" json:"reporte_id,omitempty"`
	Read      bool                    `gorm:"column:is_read;not null;default:false;index" json:"leida"`
	ReadAt    *time.Time              `json:"leida_en,omitempty"`
	CreatedAt time.Time               `gorm:"index:idx_notifications_user_created" json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
