package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"ecoreports/internal/domain"
	"ecoreports/internal/events"
	"ecoreports/internal/metrics"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"
	"ecoreports/internal/worker"
	"ecoreports/pkg/cloudinary"
	"ecoreports/pkg/location"
	"ecoreports/pkg/proximity"

	"github.com/apex/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   uint
	Role domain.Role
}

type CreateReportInput struct {
	Description string
	Latitude    float64
	Longitude   float64
	Address     string
	WasteType   string
	Image       []byte
}

type CreateReportResult struct {
	Report        *models.Report `json:"reporte"`
	PointsAwarded int            `json:"puntos_ganados"`
	ImageUploaded bool           `json:"imagen_subida"`
	Balance       int            `json:"puntos_totales"`
}

type ListReportsInput struct {
	Status   string
	Mine     bool
	Page     int
	PageSize int
}

type ReportPage struct {
	Items    []models.Report `json:"reportes"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type NearbyReport struct {
	models.Report
	DistanceKm float64 `json:"distancia_km"`
	Proximity  string  `json:"proximidad,omitempty"`
}

// ReportService drives the report lifecycle and its side effects: points, achievements,
// notifications, events and live map markers.
type ReportService struct {
	repo          *repository.ReportRepository
	userRepo      *repository.UserRepository
	pointsRepo    *repository.PointsRepository
	points        *PointsService
	achievements  *AchievementService
	notifications *NotificationService
	settings      *SettingsService
	images        cloudinary.Client
	publisher     events.Publisher
	live          LivePusher
	tasks         *worker.Queue
	audit         *Auditor
	maxImageBytes int64
}

type ReportServiceDeps struct {
	Repo          *repository.ReportRepository
	UserRepo      *repository.UserRepository
	PointsRepo    *repository.PointsRepository
	Points        *PointsService
	Achievements  *AchievementService
	Notifications *NotificationService
	Settings      *SettingsService
	Images        cloudinary.Client
	Publisher     events.Publisher
	Live          LivePusher
	Tasks         *worker.Queue
	Audit         *Auditor
	MaxImageBytes int64
}

func NewReportService(d ReportServiceDeps) *ReportService {
	pub := d.Publisher
	if pub == nil {
		pub = events.Noop{}
	}
	maxBytes := d.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &ReportService{
		repo:          d.Repo,
		userRepo:      d.UserRepo,
		pointsRepo:    d.PointsRepo,
		points:        d.Points,
		achievements:  d.Achievements,
		notifications: d.Notifications,
		settings:      d.Settings,
		images:        d.Images,
		publisher:     pub,
		live:          d.Live,
		tasks:         d.Tasks,
		audit:         d.Audit,
		maxImageBytes: maxBytes,
	}
}

func (in *CreateReportInput) normalize() error {
	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)
	in.WasteType = strings.TrimSpace(in.WasteType)
	n := utf8.RuneCountInString(in.Description)
	if n < domain.DescriptionMinLen || n > domain.DescriptionMaxLen {
		return ErrValidation("la descripción debe tener entre %d y %d caracteres", domain.DescriptionMinLen, domain.DescriptionMaxLen)
	}
	if !location.ValidCoordinates(in.Latitude, in.Longitude) {
		return ErrValidation("coordenadas inválidas")
	}
	if utf8.RuneCountInString(in.Address) > domain.AddressMaxLen {
		return ErrValidation("la dirección no puede superar %d caracteres", domain.AddressMaxLen)
	}
	if utf8.RuneCountInString(in.WasteType) > domain.WasteTypeMaxLen {
		return ErrValidation("el tipo estimado no puede superar %d caracteres", domain.WasteTypeMaxLen)
	}
	return nil
}

// ValidateImage checks size and sniffed content type.
func (s *ReportService) ValidateImage(data []byte) error {
	if len(data) == 0 {
		return ErrValidation("la imagen está vacía")
	}
	if int64(len(data)) > s.maxImageBytes {
		return ErrValidation("la imagen supera el tamaño máximo de %d MB", s.maxImageBytes>>20)
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return ErrValidation("formato de imagen no permitido (%s); use JPEG, PNG o WebP", mt.String())
	}
	return nil
}

// uploadImage stores the original and a thumbnail. Any failure leaves no asset behind
// and the report continues without a photo.
func (s *ReportService) uploadImage(ctx context.Context, data []byte) (original, thumb *cloudinary.UploadResult, err error) {
	if s.images == nil {
		return nil, nil, ErrImageHost(errors.New("image host not configured"))
	}
	publicID := uuid.NewString()
	original, err = s.images.Upload(ctx, data, publicID)
	if err != nil {
		return nil, nil, ErrImageHost(err)
	}
	thumb, err = s.images.UploadThumbnail(ctx, data, publicID)
	if err != nil {
		if derr := s.images.Destroy(ctx, original.PublicID); derr != nil {
			log.WithError(derr).WithField("public_id", original.PublicID).Warn("cleanup after thumbnail failure")
		}
		return nil, nil, ErrImageHost(err)
	}
	return original, thumb, nil
}

// Create stores a report in Reported state and awards its points synchronously.
// Notifications, achievement evaluation, event publishing and the map marker run
// in the background.
func (s *ReportService) Create(ctx context.Context, userID uint, in CreateReportInput) (*CreateReportResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	owner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "usuario")
	}
	if !owner.Active {
		return nil, ErrInactiveUser()
	}
	if in.Image != nil {
		if err := s.ValidateImage(in.Image); err != nil {
			return nil, err
		}
	}

	report := &models.Report{
		UserID:      userID,
		Description: in.Description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Address:     in.Address,
		WasteType:   in.WasteType,
		Status:      domain.StatusReported,
		CellToken:   location.CellToken(in.Latitude, in.Longitude, domain.ReportCellLevel),
		Active:      true,
	}
	if in.Image != nil {
		original, thumb, err := s.uploadImage(ctx, in.Image)
		if err != nil {
			metrics.ImageUploadFailuresTotal.Inc()
			log.WithError(err).WithField("user_id", userID).Warn("image upload failed, creating text-only report")
		} else {
			report.ImageURL = original.URL
			report.ImagePublicID = original.PublicID
			report.ThumbnailURL = thumb.URL
		}
	}

	pts := reportAward(s.settings.Policy(ctx), report.HasImage())
	var (
		award    *AwardResult
		observed int
	)
	err = s.pointsRepo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, report); err != nil {
			return err
		}
		st, err := repo.StatsForUser(ctx, userID)
		if err != nil {
			return err
		}
		observed = int(st.Total)
		if pts <= 0 {
			return nil
		}
		award, err = s.points.awardTx(ctx, tx, userID, pts, domain.ActionReportCreated,
			fmt.Sprintf("Reporte #%d", report.ID), &report.ID)
		return err
	})
	if err != nil {
		if report.ImagePublicID != "" {
			s.destroyImageLater(report.ImagePublicID)
		}
		return nil, err
	}
	s.points.settled(award)

	res := &CreateReportResult{Report: report, ImageUploaded: report.HasImage()}
	if award != nil {
		res.PointsAwarded = award.Entry.Delta
		res.Balance = award.Balance
	} else {
		res.Balance = owner.Points
	}

	log.WithFields(log.Fields{
		"report_id": report.ID,
		"user_id":   userID,
		"photo":     report.HasImage(),
		"points":    res.PointsAwarded,
	}).Info("report created")
	s.audit.Record(ctx, userID, "report.create", "report", report.ID, map[string]interface{}{"imagen": report.HasImage()})
	s.afterCreate(report, owner, observed)
	return res, nil
}

// afterCreate queues the side effects of a new report. reportCount is the owner's
// active report count as seen by the creating transaction.
func (s *ReportService) afterCreate(report *models.Report, owner *models.User, reportCount int) {
	r := *report
	reportID := r.ID
	s.tasks.Go("notify_new_report", func(ctx context.Context) error {
		ids, err := s.userRepo.ActiveIDsByRole(ctx, domain.RoleAuthority, domain.RoleAdmin)
		if err != nil {
			return err
		}
		recipients := ids[:0]
		for _, id := range ids {
			if id != r.UserID {
				recipients = append(recipients, id)
			}
		}
		_, err = s.notifications.NotifyMany(ctx, recipients, domain.NotifNewReport,
			"Nuevo reporte",
			fmt.Sprintf("%s reportó: %s", owner.Name, truncate(r.Description, 80)),
			map[string]interface{}{"reporte_id": reportID, "latitud": r.Latitude, "longitud": r.Longitude},
			&reportID)
		return err
	})
	s.tasks.Go("evaluate_achievements", func(ctx context.Context) error {
		_, err := s.achievements.EvaluateAfterReport(ctx, r.UserID, reportCount)
		return err
	})
	s.tasks.Go("publish_report_created", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.Event{
			Type:       events.ReportCreated,
			ReportID:   reportID,
			UserID:     r.UserID,
			Status:     string(r.Status),
			OccurredAt: r.CreatedAt,
			Data:       map[string]interface{}{"latitud": r.Latitude, "longitud": r.Longitude, "celda": r.CellToken},
		})
	})
	s.broadcastMarker(&r)
}

func (s *ReportService) broadcastMarker(r *models.Report) {
	if s.live == nil {
		return
	}
	s.live.Broadcast("report_marker", map[string]interface{}{
		"id":       r.ID,
		"latitud":  r.Latitude,
		"longitud": r.Longitude,
		"estado":   r.Status,
	})
}

func (s *ReportService) destroyImageLater(publicID string) {
	if s.images == nil || publicID == "" {
		return
	}
	s.tasks.Go("destroy_image", func(ctx context.Context) error {
		return s.images.Destroy(ctx, publicID)
	})
}

// Transition applies a status change. The conditional update on the expected
// current status makes the transition itself the idempotence key, so the
// resolution bonus is awarded at most once.
func (s *ReportService) Transition(ctx context.Context, actor Actor, reportID uint, estado, comment string) (*models.Report, error) {
	if !actor.Role.CanTriage() {
		return nil, ErrForbidden("solo autoridades pueden cambiar el estado")
	}
	to, ok := domain.ParseReportStatus(estado)
	if !ok {
		return nil, ErrValidation("estado inválido: %q", estado)
	}
	comment = truncate(strings.TrimSpace(comment), domain.CommentMaxLen)

	report, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, notFoundOr(err, "reporte")
	}
	from := report.Status
	if !domain.CanTransition(from, to) {
		return nil, ErrInvalidTransition(from, to)
	}

	resolvedPts := s.settings.Policy(ctx).ReportResolved
	now := time.Now()
	var award *AwardResult
	var moved bool
	err = s.pointsRepo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		moved, err = s.repo.WithTx(tx).Transition(ctx, reportID, from, to, repository.TransitionFields{
			AuthorityID: actor.ID,
			Comment:     comment,
			At:          now,
		})
		if err != nil || !moved {
			return err
		}
		if to != domain.StatusResolved {
			return nil
		}
		already, err := s.pointsRepo.WithTx(tx).HasReportEntry(ctx, reportID, domain.ActionReportResolved)
		if err != nil || already {
			return err
		}
		if resolvedPts <= 0 {
			return nil
		}
		award, err = s.points.awardTx(ctx, tx, report.UserID, resolvedPts, domain.ActionReportResolved,
			fmt.Sprintf("Reporte #%d resuelto", reportID), &reportID)
		if IsKind(err, KindInactiveUser) {
			log.WithField("user_id", report.UserID).Warn("owner inactive, resolution bonus skipped")
			award = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		current, gerr := s.repo.GetByID(ctx, reportID)
		if gerr != nil {
			return nil, notFoundOr(gerr, "reporte")
		}
		return nil, ErrInvalidTransition(current.Status, to)
	}
	s.points.settled(award)
	metrics.ReportTransitionsTotal.WithLabelValues(string(to)).Inc()

	updated, err := s.repo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"report_id": reportID,
		"from":      from,
		"to":        to,
		"actor_id":  actor.ID,
	}).Info("report status changed")
	s.audit.Record(ctx, actor.ID, "report.transition", "report", reportID,
		map[string]interface{}{"de": from, "a": to, "comentario": comment})
	s.afterTransition(updated, from, actor.ID, award)
	return updated, nil
}

func (s *ReportService) afterTransition(r *models.Report, from domain.ReportStatus, actorID uint, award *AwardResult) {
	reportID, ownerID := r.ID, r.UserID
	payload := map[string]interface{}{"reporte_id": reportID, "estado": r.Status, "estado_anterior": from}
	var (
		kind        domain.NotificationType
		title, body string
	)
	switch r.Status {
	case domain.StatusResolved:
		kind, title = domain.NotifReportResolved, "¡Tu reporte fue resuelto!"
		body = fmt.Sprintf("El reporte #%d fue marcado como resuelto.", reportID)
		if award != nil {
			body += fmt.Sprintf(" Ganaste %d puntos.", award.Entry.Delta)
			payload["puntos"] = award.Entry.Delta
		}
	case domain.StatusRejected:
		kind, title = domain.NotifReportRejected, "Tu reporte fue rechazado"
		body = fmt.Sprintf("El reporte #%d fue rechazado.", reportID)
		if r.AuthorityComment != "" {
			body += " Motivo: " + r.AuthorityComment
			payload["comentario"] = r.AuthorityComment
		}
	default:
		kind, title = domain.NotifStatusUpdate, "Tu reporte está en proceso"
		body = fmt.Sprintf("Una autoridad está atendiendo el reporte #%d.", reportID)
	}
	s.tasks.Go("notify_status_change", func(ctx context.Context) error {
		_, err := s.notifications.Notify(ctx, ownerID, kind, title, body, payload, &reportID)
		return err
	})
	if r.Status == domain.StatusResolved {
		s.tasks.Go("evaluate_achievements", func(ctx context.Context) error {
			_, err := s.achievements.Evaluate(ctx, ownerID)
			return err
		})
	}
	status := string(r.Status)
	s.tasks.Go("publish_status_changed", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, events.Event{
			Type:       events.ReportStatusChanged,
			ReportID:   reportID,
			UserID:     ownerID,
			Status:     status,
			ActorID:    actorID,
			OccurredAt: time.Now(),
			Data:       map[string]interface{}{"estado_anterior": from},
		})
	})
	s.broadcastMarker(r)
}

func (s *ReportService) Get(ctx context.Context, id uint) (*models.Report, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "reporte")
	}
	return r, nil
}

func (s *ReportService) List(ctx context.Context, viewer Actor, in ListReportsInput) (*ReportPage, error) {
	f := repository.ReportFilter{Page: in.Page, Limit: clampLimit(in.PageSize, 20, 100)}
	if f.Page < 1 {
		f.Page = 1
	}
	if in.Status != "" {
		st, ok := domain.ParseReportStatus(in.Status)
		if !ok {
			return nil, ErrValidation("estado inválido: %q", in.Status)
		}
		f.Status = st
	}
	if in.Mine {
		id := viewer.ID
		f.UserID = &id
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ReportPage{Items: items, Total: total, Page: f.Page, PageSize: f.Limit}, nil
}

// Nearby returns active reports within radiusKm of a point, closest first.
func (s *ReportService) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyReport, error) {
	if !location.ValidCoordinates(lat, lng) {
		return nil, ErrValidation("coordenadas inválidas")
	}
	if radiusKm <= 0 {
		radiusKm = 2
	}
	if radiusKm > 50 {
		return nil, ErrValidation("el radio máximo es 50 km")
	}
	limit = clampLimit(limit, 50, 200)
	box := location.BoundingBox(lat, lng, radiusKm)
	candidates, err := s.repo.InBoundingBox(ctx, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng, limit*4)
	if err != nil {
		return nil, err
	}
	out := make([]NearbyReport, 0, len(candidates))
	for _, r := range candidates {
		d := location.HaversineKm(lat, lng, r.Latitude, r.Longitude)
		if d <= radiusKm {
			out = append(out, NearbyReport{
				Report:     r,
				DistanceKm: d,
				Proximity:  proximity.Label(proximity.Closeness(d, radiusKm)),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MapCells groups open reports into S2 cells of the given level.
func (s *ReportService) MapCells(ctx context.Context, level int) ([]location.Cluster, error) {
	if level < location.MinCellLevel || level > location.MaxCellLevel {
		return nil, ErrValidation("level debe estar entre %d y %d", location.MinCellLevel, location.MaxCellLevel)
	}
	points, err := s.repo.OpenCells(ctx)
	if err != nil {
		return nil, err
	}
	agg := location.NewCellAggregator(level)
	for _, p := range points {
		agg.AddToken(p.CellToken, p.Latitude, p.Longitude)
	}
	return agg.Clusters(), nil
}

// Delete soft-deletes a report. Owners may delete only while it is still Reported;
// admins may delete any. Points already earned stay in the ledger.
func (s *ReportService) Delete(ctx context.Context, actor Actor, id uint) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "reporte")
	}
	if actor.Role != domain.RoleAdmin {
		if r.UserID != actor.ID {
			return ErrNotFound("reporte")
		}
		if r.Status != domain.StatusReported {
			return ErrForbidden("solo se pueden eliminar reportes pendientes")
		}
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor.ID, "report.delete", "report", id, nil)
	s.destroyImageLater(r.ImagePublicID)
	return nil
}
