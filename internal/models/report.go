package models

import (
	"time"

	"ecoreports/internal/domain"
)

type Report struct {
	ID                  uint                `gorm:"primaryKey" json:"id"`
	UserID              uint                `gorm:"not null;index" json:"usuario_id"`
	Description         string              `gorm:"size:500;not null" json:"descripcion"`
	Latitude            float64             `gorm:"not null" json:"latitud"`
	Longitude           float64             `gorm:"not null" json:"longitud"`
	Address             string              `gorm:"size:255" json:"direccion,omitempty"`
	WasteType           string              `gorm:"size:64" json:"tipo_estimado,omitempty"`
	ImageURL            string              `gorm:"size:512" json:"imagen_url,omitempty"`
	ThumbnailURL        string              `gorm:"size:512" json:"thumbnail_url,omitempty"`
	ImagePublicID       string              `gorm:"size:255" json:"-"`
	Status              domain.ReportStatus `gorm:"size:20;not null;index" json:"estado"`
	AssignedAuthorityID *uint               `gorm:"index" json:"autoridad_asignada_id"`
	AuthorityComment    string              `gorm:"size:500" json:"comentario_autoridad,omitempty"`
	ResolvedAt          *time.Time          `json:"fecha_resolucion"`
	CellToken           string              `gorm:"size:16;index" json:"-"`
	Active              bool                `gorm:"not null;default:true;index" json:"-"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
}

func (Report) TableName() string {
	return "reports"
}

func (r *Report) HasImage() bool { return r.ImageURL != "" }
