package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// TasksTotal counts background tasks by name and result (ok, error, dropped).
	TasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "tasks",
		Name:      "total",
		Help:      "Background side-effect tasks, labeled by task name and result.",
	}, []string{"task", "result"})

	// PointsAwardedTotal sums awarded points by ledger action.
	PointsAwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "points",
		Name:      "awarded_total",
		Help:      "Points awarded through the ledger, labeled by action type.",
	}, []string{"action"})

	AchievementsUnlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "achievements",
		Name:      "unlocked_total",
		Help:      "Achievement unlocks, labeled by achievement key.",
	}, []string{"achievement"})

	NotificationsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "Persisted notifications, labeled by type.",
	}, []string{"type"})

	ReportTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "reports",
		Name:      "transitions_total",
		Help:      "Applied report status transitions, labeled by target status.",
	}, []string{"to"})

	ImageUploadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "reports",
		Name:      "image_upload_failures_total",
		Help:      "Report images that failed to upload; the report was stored without a photo.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecoreports",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)

// Register registers all collectors with the default registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			TasksTotal,
			PointsAwardedTotal,
			AchievementsUnlockedTotal,
			NotificationsCreatedTotal,
			ReportTransitionsTotal,
			ImageUploadFailuresTotal,
			RateLimitedTotal,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// TaskObserver adapts TasksTotal to the worker queue.
type TaskObserver struct{}

func (TaskObserver) TaskFinished(name, result string) {
	TasksTotal.WithLabelValues(name, result).Inc()
}
