package service

import (
	"context"
	"strings"

	"ecoreports/internal/domain"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"
)

// Profile is what GET /me returns.
type Profile struct {
	User         *models.User  `json:"usuario"`
	Level        domain.Level  `json:"nivel"`
	NextLevel    *domain.Level `json:"siguiente_nivel,omitempty"`
	PointsToNext int           `json:"puntos_para_siguiente"`
	Stats        UserStats     `json:"estadisticas"`
	Rank         int           `json:"posicion,omitempty"`
	Achievements int           `json:"logros"`
}

type UserPage struct {
	Items    []models.User `json:"usuarios"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// UserService covers profile reads and the admin account surface.
type UserService struct {
	userRepo      *repository.UserRepository
	achRepo       *repository.AchievementRepository
	achievements  *AchievementService
	points        *PointsService
	notifications *NotificationService
	audit         *Auditor
}

func NewUserService(
	userRepo *repository.UserRepository,
	achRepo *repository.AchievementRepository,
	achievements *AchievementService,
	points *PointsService,
	notifications *NotificationService,
	audit *Auditor,
) *UserService {
	return &UserService{
		userRepo:      userRepo,
		achRepo:       achRepo,
		achievements:  achievements,
		points:        points,
		notifications: notifications,
		audit:         audit,
	}
}

func (s *UserService) Profile(ctx context.Context, userID uint) (*Profile, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "usuario")
	}
	stats, err := s.achievements.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocks, err := s.achRepo.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	lvl := domain.LevelFor(u.Points)
	p := &Profile{User: u, Level: lvl, Stats: stats, Achievements: len(unlocks)}
	if next, ok := domain.NextLevel(lvl.Number); ok {
		p.NextLevel = &next
		p.PointsToNext = next.MinPoints - u.Points
	}
	if u.Role == domain.RoleCitizen {
		if p.Rank, err = s.userRepo.RankOf(ctx, u); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *UserService) SetFCMToken(ctx context.Context, userID uint, token string) error {
	token = strings.TrimSpace(token)
	if len(token) > 512 {
		return ErrValidation("token demasiado largo")
	}
	return s.userRepo.SetFCMToken(ctx, userID, token)
}

func (s *UserService) List(ctx context.Context, search, role string, page, pageSize int) (*UserPage, error) {
	var r domain.Role
	if role != "" {
		var ok bool
		if r, ok = domain.ParseRole(role); !ok {
			return nil, ErrValidation("rol inválido: %q", role)
		}
	}
	if page < 1 {
		page = 1
	}
	pageSize = clampLimit(pageSize, 20, 100)
	items, total, err := s.userRepo.List(ctx, strings.TrimSpace(search), r, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &UserPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// SetActive enables or disables an account. Admins cannot disable themselves.
func (s *UserService) SetActive(ctx context.Context, actorID, userID uint, active bool) error {
	if actorID == userID && !active {
		return ErrValidation("no puedes desactivar tu propia cuenta")
	}
	n, err := s.userRepo.SetActive(ctx, userID, active)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
			return notFoundOr(err, "usuario")
		}
	}
	s.audit.Record(ctx, actorID, "user.set_active", "user", userID, map[string]interface{}{"activo": active})
	return nil
}

func (s *UserService) SetRole(ctx context.Context, actorID, userID uint, role string) error {
	r, ok := domain.ParseRole(role)
	if !ok {
		return ErrValidation("rol inválido: %q", role)
	}
	if actorID == userID && r != domain.RoleAdmin {
		return ErrValidation("no puedes quitarte el rol de administrador")
	}
	n, err := s.userRepo.SetRole(ctx, userID, r)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
			return notFoundOr(err, "usuario")
		}
	}
	s.audit.Record(ctx, actorID, "user.set_role", "user", userID, map[string]interface{}{"rol": r})
	return nil
}

// GrantPoints awards manual_grant points on behalf of an admin.
func (s *UserService) GrantPoints(ctx context.Context, actorID, userID uint, delta int, reason string) (*AwardResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrValidation("el motivo es obligatorio")
	}
	res, err := s.points.Award(ctx, userID, delta, domain.ActionManualGrant, reason, nil)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actorID, "points.grant", "user", userID, map[string]interface{}{"puntos": delta, "motivo": reason})
	return res, nil
}

// BroadcastUrgent sends an urgent notification to every active user holding one of roles.
func (s *UserService) BroadcastUrgent(ctx context.Context, actorID uint, roles []string, title, body string) (int, error) {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" || body == "" {
		return 0, ErrValidation("título y mensaje son obligatorios")
	}
	targets := make([]domain.Role, 0, len(roles))
	for _, r := range roles {
		role, ok := domain.ParseRole(r)
		if !ok {
			return 0, ErrValidation("rol inválido: %q", r)
		}
		targets = append(targets, role)
	}
	if len(targets) == 0 {
		targets = []domain.Role{domain.RoleAuthority, domain.RoleAdmin}
	}
	ids, err := s.userRepo.ActiveIDsByRole(ctx, targets...)
	if err != nil {
		return 0, err
	}
	n, err := s.notifications.NotifyMany(ctx, ids, domain.NotifUrgent, title, body,
		map[string]interface{}{"roles": targets}, nil)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, actorID, "notification.urgent", "notification", 0, map[string]interface{}{"destinatarios": n})
	return n, nil
}
