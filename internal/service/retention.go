package service

import (
	"context"
	"time"

	"github.com/apex/log"
)

// RetentionScheduler purges old notifications on a fixed interval until ctx ends.
type RetentionScheduler struct {
	notifications *NotificationService
	days          int
	interval      time.Duration
}

func NewRetentionScheduler(notifications *NotificationService, days int, interval time.Duration) *RetentionScheduler {
	return &RetentionScheduler{notifications: notifications, days: days, interval: interval}
}

// Run sweeps once immediately, then every interval. It blocks.
func (r *RetentionScheduler) Run(ctx context.Context) {
	if r.days <= 0 || r.interval <= 0 {
		log.Info("notification retention disabled")
		return
	}
	r.sweep(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *RetentionScheduler) sweep(ctx context.Context) {
	if _, err := r.notifications.PurgeOlderThan(ctx, r.days); err != nil {
		log.WithError(err).Error("notification retention sweep failed")
	}
}
