package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecoreports/internal/domain"
	"ecoreports/internal/metrics"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"
	"ecoreports/internal/worker"

	"github.com/apex/log"
	"gorm.io/gorm"
)

// AwardResult is the outcome of one ledger award.
type AwardResult struct {
	Entry         models.PointsLedgerEntry `json:"movimiento"`
	Balance       int                      `json:"puntos"`
	Level         int                      `json:"nivel"`
	PreviousLevel int                      `json:"-"`
	LeveledUp     bool                     `json:"subio_nivel"`
}

type HistoryPage struct {
	Items  []models.PointsLedgerEntry `json:"historial"`
	Total  int64                      `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

// PointsService is the only writer of users.points. Every award appends a ledger row
// and bumps the balance in the same transaction.
type PointsService struct {
	repo          *repository.PointsRepository
	userRepo      *repository.UserRepository
	notifications *NotificationService
	tasks         *worker.Queue
}

func NewPointsService(repo *repository.PointsRepository, userRepo *repository.UserRepository, notifications *NotificationService, tasks *worker.Queue) *PointsService {
	return &PointsService{repo: repo, userRepo: userRepo, notifications: notifications, tasks: tasks}
}

// Award grants delta points to userID in its own transaction.
func (s *PointsService) Award(ctx context.Context, userID uint, delta int, action domain.ActionType, description string, reportID *uint) (*AwardResult, error) {
	var res *AwardResult
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		res, err = s.awardTx(ctx, tx, userID, delta, action, description, reportID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.settled(res)
	return res, nil
}

// awardTx performs the award inside an open transaction. Callers must call settled
// after the transaction commits.
func (s *PointsService) awardTx(ctx context.Context, tx *gorm.DB, userID uint, delta int, action domain.ActionType, description string, reportID *uint) (*AwardResult, error) {
	if delta <= 0 {
		return nil, ErrValidation("los puntos a otorgar deben ser positivos")
	}
	if !action.Valid() {
		return nil, ErrValidation("tipo de acción desconocido: %s", action)
	}
	if userID == 0 {
		return nil, ErrValidation("usuario inválido")
	}
	repo := s.repo.WithTx(tx)
	u, err := repo.Increment(ctx, userID, delta)
	if errors.Is(err, repository.ErrUserInactive) {
		var c int64
		if cerr := tx.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&c).Error; cerr != nil {
			return nil, cerr
		}
		if c == 0 {
			return nil, ErrValidation("el usuario %d no existe", userID)
		}
		return nil, ErrInactiveUser()
	}
	if err != nil {
		return nil, fmt.Errorf("increment balance: %w", err)
	}

	entry := models.PointsLedgerEntry{
		UserID:      userID,
		Delta:       delta,
		Action:      action,
		ReportID:    reportID,
		Description: truncate(strings.TrimSpace(description), 255),
	}
	if err := repo.InsertEntry(ctx, &entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	level := domain.LevelFor(u.Points).Number
	if level != u.Level {
		if err := repo.SetLevel(ctx, userID, level); err != nil {
			return nil, fmt.Errorf("update level: %w", err)
		}
	}
	return &AwardResult{
		Entry:         entry,
		Balance:       u.Points,
		Level:         level,
		PreviousLevel: u.Level,
		LeveledUp:     level > u.Level,
	}, nil
}

// settled runs post-commit effects of an award.
func (s *PointsService) settled(res *AwardResult) {
	if res == nil {
		return
	}
	metrics.PointsAwardedTotal.WithLabelValues(string(res.Entry.Action)).Add(float64(res.Entry.Delta))
	log.WithFields(log.Fields{
		"user_id": res.Entry.UserID,
		"delta":   res.Entry.Delta,
		"action":  res.Entry.Action,
		"balance": res.Balance,
	}).Info("points awarded")
	if !res.LeveledUp || s.notifications == nil || s.tasks == nil {
		return
	}
	userID, level := res.Entry.UserID, domain.LevelFor(res.Balance)
	s.tasks.Go("notify_level_up", func(ctx context.Context) error {
		_, err := s.notifications.Notify(ctx, userID, domain.NotifLevelUp,
			"¡Subiste de nivel!",
			fmt.Sprintf("Ahora eres nivel %d: %s", level.Number, level.Name),
			map[string]interface{}{"nivel": level.Number, "nombre": level.Name, "puntos": res.Balance},
			nil)
		return err
	})
}

func (s *PointsService) Balance(ctx context.Context, userID uint) (int, error) {
	b, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, notFoundOr(err, "usuario")
	}
	return b, nil
}

// History returns ledger entries newest first.
func (s *PointsService) History(ctx context.Context, userID uint, limit, offset int) (*HistoryPage, error) {
	limit = clampLimit(limit, 20, 100)
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.repo.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Reconcile lists users whose balance does not match their ledger.
func (s *PointsService) Reconcile(ctx context.Context) ([]repository.LedgerMismatch, error) {
	list, err := s.repo.Mismatches(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		log.WithField("users", len(list)).Warn("points ledger mismatch detected")
	}
	return list, nil
}

func (s *PointsService) Leaderboard(ctx context.Context, limit int) ([]repository.LeaderboardRow, error) {
	return s.userRepo.Leaderboard(ctx, clampLimit(limit, 10, 100))
}

func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
