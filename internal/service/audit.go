package service

import (
	"context"
	"encoding/json"
	"strconv"

	"ecoreports/internal/models"
	"ecoreports/internal/repository"

	"github.com/apex/log"
	"gorm.io/datatypes"
)

// Auditor appends audit rows. Failures are logged, never returned.
type Auditor struct {
	repo *repository.AuditLogRepository
}

func NewAuditor(repo *repository.AuditLogRepository) *Auditor {
	return &Auditor{repo: repo}
}

func (a *Auditor) Record(ctx context.Context, actorID uint, action, resource string, resourceID uint, meta map[string]interface{}) {
	if a == nil || a.repo == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: strconv.FormatUint(uint64(resourceID), 10),
	}
	if actorID != 0 {
		id := actorID
		entry.UserID = &id
	}
	if rc, ok := RequestInfoFrom(ctx); ok {
		entry.IP = rc.IP
		entry.UserAgent = truncate(rc.UserAgent, 512)
	}
	if meta != nil {
		b, _ := json.Marshal(meta)
		entry.Metadata = datatypes.JSON(b)
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		log.WithError(err).WithFields(log.Fields{"action": action, "resource": resource}).Error("audit log write failed")
	}
}

// RequestInfo carries client details from the HTTP layer into audit rows.
type RequestInfo struct {
	IP        string
	UserAgent string
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, ri RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, ri)
}

func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	ri, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return ri, ok
}
