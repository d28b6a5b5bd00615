package service

import (
	"context"
	"encoding/json"
	"time"

	"ecoreports/internal/domain"
	"ecoreports/internal/metrics"
	"ecoreports/internal/models"
	"ecoreports/internal/repository"

	"github.com/apex/log"
	"gorm.io/datatypes"
)

// LivePusher delivers events to connected websocket clients.
type LivePusher interface {
	SendToUser(userID uint, event string, payload interface{})
	Broadcast(event string, payload interface{})
}

type NotificationPage struct {
	Items    []models.Notification `json:"notificaciones"`
	Total    int64                 `json:"total"`
	Unread   int64                 `json:"no_leidas"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	fcm      *FCMService
	live     LivePusher
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, fcm *FCMService, live LivePusher) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, fcm: fcm, live: live}
}

func encodePayload(data map[string]interface{}) datatypes.JSON {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Notify persists a notification, then pushes it best-effort.
func (s *NotificationService) Notify(ctx context.Context, userID uint, notifType domain.NotificationType, title, body string, data map[string]interface{}, reportID *uint) (*models.Notification, error) {
	if !notifType.Valid() {
		return nil, ErrValidation("tipo de notificación desconocido: %s", notifType)
	}
	n := &models.Notification{
		UserID:   userID,
		Type:     notifType,
		Title:    title,
		Body:     body,
		Payload:  encodePayload(data),
		ReportID: reportID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(notifType)).Inc()
	s.sendPush(ctx, n, data)
	return n, nil
}

func (s *NotificationService) sendPush(ctx context.Context, n *models.Notification, data map[string]interface{}) {
	if s.live != nil {
		s.live.SendToUser(n.UserID, "notification", n)
	}
	if s.fcm == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, n.UserID)
	if err != nil || u.FCMToken == "" {
		return
	}
	if err := s.fcm.SendToUser(ctx, u.FCMToken, string(n.Type), n.Title, n.Body, data); err != nil {
		log.WithError(err).WithField("user_id", n.UserID).Warn("push delivery failed")
	}
}

// NotifyMany inserts one notification per distinct recipient and returns how many were stored.
func (s *NotificationService) NotifyMany(ctx context.Context, userIDs []uint, notifType domain.NotificationType, title, body string, data map[string]interface{}, reportID *uint) (int, error) {
	if !notifType.Valid() {
		return 0, ErrValidation("tipo de notificación desconocido: %s", notifType)
	}
	seen := make(map[uint]bool, len(userIDs))
	payload := encodePayload(data)
	list := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		list = append(list, models.Notification{
			UserID:   id,
			Type:     notifType,
			Title:    title,
			Body:     body,
			Payload:  payload,
			ReportID: reportID,
		})
	}
	if len(list) == 0 {
		return 0, nil
	}
	if err := s.repo.CreateBatch(ctx, list); err != nil {
		return 0, err
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(notifType)).Add(float64(len(list)))

	if s.live != nil {
		for i := range list {
			s.live.SendToUser(list[i].UserID, "notification", &list[i])
		}
	}
	if s.fcm != nil && s.userRepo != nil {
		ids := make([]uint, 0, len(list))
		for _, n := range list {
			ids = append(ids, n.UserID)
		}
		tokens, err := s.userRepo.FCMTokens(ctx, ids)
		if err != nil {
			log.WithError(err).Warn("load push tokens")
		}
		for userID, token := range tokens {
			if err := s.fcm.SendToUser(ctx, token, string(notifType), title, body, data); err != nil {
				log.WithError(err).WithField("user_id", userID).Warn("push delivery failed")
			}
		}
	}
	return len(list), nil
}

// List returns a page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, page, pageSize int, unreadOnly bool) (*NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	pageSize = clampLimit(pageSize, 20, 100)
	items, total, err := s.repo.ListByUserID(ctx, userID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Items: items, Total: total, Unread: unread, Page: page, PageSize: pageSize}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead is idempotent for the owner. Ids owned by someone else are NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	n, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.repo.GetOwned(ctx, id, userID); err != nil {
		return notFoundOr(err, "notificación")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, id, userID uint) error {
	n, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound("notificación")
	}
	return nil
}

// PurgeOlderThan deletes notifications older than days and returns the count.
func (s *NotificationService) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, ErrValidation("days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"deleted": n, "days": days}).Info("notifications purged")
	return n, nil
}
