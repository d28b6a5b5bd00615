package domain

import "strings"

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCitizen, RoleAuthority, RoleAdmin:
		return r, true
	}
	return "", false
}

// CanTriage reports whether the role may change report status.
func (r Role) CanTriage() bool {
	switch r {
	case RoleAuthority, RoleAdmin:
		return true
	case RoleCitizen:
		return false
	}
	return false
}

// ReportStatus is the report lifecycle state.
type ReportStatus string

const (
	StatusReported   ReportStatus = "Reported"
	StatusInProgress ReportStatus = "InProgress"
	StatusResolved   ReportStatus = "Resolved"
	StatusRejected   ReportStatus = "Rejected"
)

func ParseReportStatus(s string) (ReportStatus, bool) {
	switch st := ReportStatus(strings.TrimSpace(s)); st {
	case StatusReported, StatusInProgress, StatusResolved, StatusRejected:
		return st, true
	}
	return "", false
}

func (s ReportStatus) IsTerminal() bool {
	switch s {
	case StatusResolved, StatusRejected:
		return true
	case StatusReported, StatusInProgress:
		return false
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
// Terminal states have no outgoing edges and Reported is never re-entered.
func CanTransition(from, to ReportStatus) bool {
	switch from {
	case StatusReported:
		return to == StatusInProgress || to == StatusResolved || to == StatusRejected
	case StatusInProgress:
		return to == StatusResolved || to == StatusRejected
	case StatusResolved, StatusRejected:
		return false
	}
	return false
}

type NotificationType string

const (
	NotifStatusUpdate   NotificationType = "status_update"
	NotifReportResolved NotificationType = "report_resolved"
	NotifReportRejected NotificationType = "report_rejected"
	NotifAchievement    NotificationType = "achievement"
	NotifLevelUp        NotificationType = "level_up"
	NotifNewReport      NotificationType = "new_report"
	NotifUrgent         NotificationType = "urgent"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifStatusUpdate, NotifReportResolved, NotifReportRejected, NotifAchievement,
		NotifLevelUp, NotifNewReport, NotifUrgent:
		return true
	}
	return false
}

// ActionType classifies a points ledger entry.
type ActionType string

const (
	ActionReportCreated    ActionType = "report_created"
	ActionReportResolved   ActionType = "report_resolved"
	ActionAchievementBonus ActionType = "achievement_bonus"
	ActionManualGrant      ActionType = "manual_grant"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionReportCreated, ActionReportResolved, ActionAchievementBonus, ActionManualGrant:
		return true
	}
	return false
}

type AchievementKey string

const (
	AchievementFirstReport       AchievementKey = "first_report"
	AchievementActiveReporter    AchievementKey = "active_reporter"
	AchievementCommittedReporter AchievementKey = "committed_reporter"
	AchievementProblemSolver     AchievementKey = "problem_solver"
)

// Achievement criteria.
const (
	MetricReports  = "reports"
	MetricResolved = "resolved"
	MetricPoints   = "points"

	MatchAtLeast = "at_least"
	MatchExactly = "exactly"
	MatchEvery   = "every"
)

// Report field limits.
const (
	DescriptionMinLen = 10
	DescriptionMaxLen = 500
	CommentMaxLen     = 500
	AddressMaxLen     = 255
	WasteTypeMaxLen   = 64
)

// S2 cell level stored on every report.
const ReportCellLevel = 15

// System setting keys for points policy overrides.
const (
	SettingPointsReportBase        = "points.report_base"
	SettingPointsReportWithPhoto   = "points.report_with_photo"
	SettingPointsReportResolved    = "points.report_resolved"
	SettingBonusFirstReport        = "points.bonus.first_report"
	SettingBonusActiveReporter     = "points.bonus.active_reporter"
	SettingBonusCommittedReporter  = "points.bonus.committed_reporter"
	SettingBonusProblemSolverPerRp = "points.bonus.problem_solver_per_report"
)
