package service

import (
	"context"
	"fmt"
	"time"

	"ecoreports/internal/domain"
	"ecoreports/internal/metrics"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"

	"github.com/apex/log"
	"gorm.io/gorm"
)

// UserStats are the aggregates achievements are evaluated against.
type UserStats struct {
	Reports  int `json:"total_reportes"`
	Resolved int `json:"reportes_resueltos"`
	Points   int `json:"puntos"`
}

// Unlocked is one achievement newly granted by Evaluate.
type Unlocked struct {
	Achievement models.Achievement `json:"logro"`
	Milestone   int                `json:"hito"`
	Bonus       int                `json:"puntos_bonus"`
	UnlockedAt  time.Time          `json:"desbloqueado_en"`
}

// AchievementView is a catalog entry as seen by one user.
type AchievementView struct {
	models.Achievement
	Unlocked       bool       `json:"desbloqueado"`
	Times          int        `json:"veces"`
	LastUnlockedAt *time.Time `json:"ultimo_desbloqueo,omitempty"`
}

type AchievementService struct {
	repo          *repository.AchievementRepository
	reportRepo    *repository.ReportRepository
	userRepo      *repository.UserRepository
	points        *PointsService
	settings      *SettingsService
	notifications *NotificationService
}

func NewAchievementService(
	repo *repository.AchievementRepository,
	reportRepo *repository.ReportRepository,
	userRepo *repository.UserRepository,
	points *PointsService,
	settings *SettingsService,
	notifications *NotificationService,
) *AchievementService {
	return &AchievementService{
		repo:          repo,
		reportRepo:    reportRepo,
		userRepo:      userRepo,
		points:        points,
		settings:      settings,
		notifications: notifications,
	}
}

func (s *AchievementService) Stats(ctx context.Context, userID uint) (UserStats, error) {
	rs, err := s.reportRepo.StatsForUser(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	balance, err := s.points.Balance(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{Reports: int(rs.Total), Resolved: int(rs.Resolved), Points: balance}, nil
}

// milestonesFor returns every milestone an achievement qualifies for at st.
// One-shot achievements always use milestone 1. Recurring "every" achievements
// yield each multiple of the threshold reached so far, so a milestone skipped by
// a late evaluation is still granted.
func milestonesFor(a models.Achievement, st UserStats) []int {
	var v int
	switch a.Metric {
	case domain.MetricReports:
		v = st.Reports
	case domain.MetricResolved:
		v = st.Resolved
	case domain.MetricPoints:
		v = st.Points
	default:
		return nil
	}
	if a.Threshold <= 0 || v <= 0 {
		return nil
	}
	switch a.Match {
	case domain.MatchAtLeast:
		if v >= a.Threshold {
			return []int{1}
		}
	case domain.MatchExactly:
		if v == a.Threshold {
			return []int{1}
		}
	case domain.MatchEvery:
		if v < a.Threshold {
			return nil
		}
		if !a.Recurring {
			return []int{1}
		}
		out := make([]int, 0, v/a.Threshold)
		for m := a.Threshold; m <= v; m += a.Threshold {
			out = append(out, m)
		}
		return out
	}
	return nil
}

// Evaluate unlocks every achievement the user newly qualifies for with the
// current stats, awarding the bonus and notifying the user for each. Bonus awards
// do not evaluate again.
func (s *AchievementService) Evaluate(ctx context.Context, userID uint) ([]Unlocked, error) {
	return s.evaluate(ctx, userID, -1)
}

// EvaluateAfterReport is Evaluate with the report count seen by the report
// creation that triggered it. Exact-count badges are judged on that count, not on
// whatever the count has become by the time the evaluation runs.
func (s *AchievementService) EvaluateAfterReport(ctx context.Context, userID uint, reportCount int) ([]Unlocked, error) {
	return s.evaluate(ctx, userID, reportCount)
}

func (s *AchievementService) evaluate(ctx context.Context, userID uint, observedReports int) ([]Unlocked, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "usuario")
	}
	if !u.Active {
		return nil, nil
	}
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if observedReports >= 0 {
		stats.Reports = observedReports
	}
	catalog, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	policy := s.settings.Policy(ctx)

	var unlocked []Unlocked
	for _, a := range catalog {
		milestones := milestonesFor(a, stats)
		if len(milestones) == 0 {
			continue
		}
		done, err := s.repo.UnlockedMilestones(ctx, userID, a.ID)
		if err != nil {
			return unlocked, err
		}
		for _, m := range milestones {
			if done[m] {
				continue
			}
			un, err := s.unlock(ctx, userID, a, m, achievementBonus(policy, a.Key, m))
			if err != nil {
				return unlocked, err
			}
			if un != nil {
				unlocked = append(unlocked, *un)
			}
		}
	}
	return unlocked, nil
}

func (s *AchievementService) unlock(ctx context.Context, userID uint, a models.Achievement, milestone, bonus int) (*Unlocked, error) {
	now := time.Now()
	var award *AwardResult
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		row := &models.UserAchievement{
			UserID:        userID,
			AchievementID: a.ID,
			Milestone:     milestone,
			UnlockedAt:    now,
		}
		if err := s.repo.WithTx(tx).Unlock(ctx, row); err != nil {
			return err
		}
		if bonus <= 0 {
			return nil
		}
		var err error
		award, err = s.points.awardTx(ctx, tx, userID, bonus, domain.ActionAchievementBonus,
			fmt.Sprintf("Logro: %s", a.Name), nil)
		return err
	})
	if err != nil {
		// A concurrent evaluation may have inserted the same milestone first.
		if done, _ := s.repo.IsUnlocked(ctx, userID, a.ID, milestone); done {
			return nil, nil
		}
		return nil, err
	}
	s.points.settled(award)
	metrics.AchievementsUnlockedTotal.WithLabelValues(string(a.Key)).Inc()
	log.WithFields(log.Fields{
		"user_id":     userID,
		"achievement": a.Key,
		"milestone":   milestone,
		"bonus":       bonus,
	}).Info("achievement unlocked")

	if s.notifications != nil {
		body := fmt.Sprintf("Desbloqueaste \"%s\" y ganaste %d puntos", a.Name, bonus)
		_, nerr := s.notifications.Notify(ctx, userID, domain.NotifAchievement, "¡Nuevo logro!", body,
			map[string]interface{}{"logro": a.Key, "hito": milestone, "puntos": bonus}, nil)
		if nerr != nil {
			log.WithError(nerr).WithField("user_id", userID).Error("achievement notification failed")
		}
	}
	return &Unlocked{Achievement: a, Milestone: milestone, Bonus: bonus, UnlockedAt: now}, nil
}

// ListForUser returns the active catalog annotated with the user's unlocks.
func (s *AchievementService) ListForUser(ctx context.Context, userID uint) ([]AchievementView, error) {
	catalog, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	times := make(map[uint]int, len(rows))
	last := make(map[uint]time.Time, len(rows))
	for _, r := range rows {
		times[r.AchievementID]++
		if r.UnlockedAt.After(last[r.AchievementID]) {
			last[r.AchievementID] = r.UnlockedAt
		}
	}
	out := make([]AchievementView, 0, len(catalog))
	for _, a := range catalog {
		v := AchievementView{Achievement: a, Times: times[a.ID], Unlocked: times[a.ID] > 0}
		if t, ok := last[a.ID]; ok {
			t := t
			v.LastUnlockedAt = &t
		}
		out = append(out, v)
	}
	return out, nil
}
