package models

import (
	"time"

	"ecoreports/internal/domain"
)

// PointsLedgerEntry is one immutable point-earning event. The sum of a user's
// entries equals users.points.
type PointsLedgerEntry struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"not null;index" json:"usuario_id"`
	Delta       int               `gorm:"not null" json:"puntos"`
	Action      domain.ActionType `gorm:"size:30;not null;index" json:"tipo_accion"`
	ReportID    *uint             `gorm:"index" json:"reporte_id,omitempty"`
	Description string            `gorm:"size:255" json:"descripcion"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

func (PointsLedgerEntry) TableName() string {
	return "points_ledger"
}
