package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"ecoreports/config"
	"ecoreports/internal/domain"
	"ecoreports/internal/repository"

	"github.com/apex/log"
)

// SettingView is one overridable setting with its effective value.
type SettingView struct {
	Key        string `json:"clave"`
	Value      int    `json:"valor"`
	Default    int    `json:"valor_por_defecto"`
	Overridden bool   `json:"modificado"`
}

// SettingsService resolves the points policy: config defaults overridden by
// system_settings rows.
type SettingsService struct {
	repo     *repository.SettingRepository
	defaults config.PointsConfig
}

func NewSettingsService(repo *repository.SettingRepository, defaults config.PointsConfig) *SettingsService {
	return &SettingsService{repo: repo, defaults: defaults}
}

func (s *SettingsService) fields(p *config.PointsConfig) map[string]*int {
	return map[string]*int{
		domain.SettingPointsReportBase:        &p.ReportBase,
		domain.SettingPointsReportWithPhoto:   &p.ReportWithPhoto,
		domain.SettingPointsReportResolved:    &p.ReportResolved,
		domain.SettingBonusFirstReport:        &p.FirstReportBonus,
		domain.SettingBonusActiveReporter:     &p.ActiveReporterBonus,
		domain.SettingBonusCommittedReporter:  &p.CommittedReporterBonus,
		domain.SettingBonusProblemSolverPerRp: &p.ProblemSolverPerReport,
	}
}

func (s *SettingsService) keys() []string {
	p := s.defaults
	keys := make([]string, 0, 7)
	for k := range s.fields(&p) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Policy never fails: unreadable or malformed overrides fall back to the defaults.
func (s *SettingsService) Policy(ctx context.Context) config.PointsConfig {
	p := s.defaults
	if s.repo == nil {
		return p
	}
	values, err := s.repo.Values(ctx, s.keys())
	if err != nil {
		log.WithError(err).Warn("points settings unavailable, using defaults")
		return p
	}
	for key, field := range s.fields(&p) {
		raw, ok := values[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			log.WithFields(log.Fields{"key": key, "value": raw}).Warn("ignoring malformed points setting")
			continue
		}
		*field = n
	}
	return p
}

func (s *SettingsService) List(ctx context.Context) ([]SettingView, error) {
	values, err := s.repo.Values(ctx, s.keys())
	if err != nil {
		return nil, err
	}
	effective := s.Policy(ctx)
	eff := s.fields(&effective)
	def := s.defaults
	defs := s.fields(&def)
	out := make([]SettingView, 0, len(eff))
	for _, key := range s.keys() {
		_, overridden := values[key]
		out = append(out, SettingView{
			Key:        key,
			Value:      *eff[key],
			Default:    *defs[key],
			Overridden: overridden,
		})
	}
	return out, nil
}

// Set stores an override. Only known keys with non-negative integer values are accepted.
func (s *SettingsService) Set(ctx context.Context, key, value string) (*SettingView, error) {
	def := s.defaults
	defs := s.fields(&def)
	field, ok := defs[key]
	if !ok {
		return nil, ErrNotFound("ajuste")
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return nil, ErrValidation("el valor de %s debe ser un entero no negativo", key)
	}
	if err := s.repo.Set(ctx, key, strconv.Itoa(n)); err != nil {
		return nil, err
	}
	return &SettingView{Key: key, Value: n, Default: *field, Overridden: true}, nil
}

func reportAward(p config.PointsConfig, withPhoto bool) int {
	if withPhoto {
		return p.ReportWithPhoto
	}
	return p.ReportBase
}

// achievementBonus returns the bonus for an unlock. problem_solver scales with the
// resolved count it was unlocked at.
func achievementBonus(p config.PointsConfig, key domain.AchievementKey, milestone int) int {
	switch key {
	case domain.AchievementFirstReport:
		return p.FirstReportBonus
	case domain.AchievementActiveReporter:
		return p.ActiveReporterBonus
	case domain.AchievementCommittedReporter:
		return p.CommittedReporterBonus
	case domain.AchievementProblemSolver:
		return p.ProblemSolverPerReport * milestone
	}
	return 0
}
