package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecoreports/config"
	"ecoreports/internal/events"
	"ecoreports/internal/repository"
	"ecoreports/internal/testutil"
	"ecoreports/internal/worker"
	"ecoreports/pkg/cloudinary"

	"gorm.io/gorm"
)

type fakeImages struct {
	mu        sync.Mutex
	failOn    string // "upload" or "thumb"
	uploads   int
	destroyed []string
}

func (f *fakeImages) Upload(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "upload" {
		return nil, errors.New("cloudinary down")
	}
	f.uploads++
	return &cloudinary.UploadResult{URL: "https://img.example/" + publicID, PublicID: "ecoreports/" + publicID}, nil
}

func (f *fakeImages) UploadThumbnail(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "thumb" {
		return nil, errors.New("cloudinary down")
	}
	id := cloudinary.ThumbnailPublicID(publicID)
	return &cloudinary.UploadResult{URL: "https://img.example/" + id, PublicID: "ecoreports/" + id}, nil
}

func (f *fakeImages) Destroy(ctx context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, publicID)
	return nil
}

type liveEvent struct {
	userID uint
	event  string
}

type fakeLive struct {
	mu     sync.Mutex
	sent   []liveEvent
	global []string
}

func (f *fakeLive) SendToUser(userID uint, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, liveEvent{userID: userID, event: event})
}

func (f *fakeLive) Broadcast(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = append(f.global, event)
}

func (f *fakeLive) broadcasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.global...)
}

// harness wires every service against a private SQLite database.
type harness struct {
	db            *gorm.DB
	cfg           *config.Config
	tasks         *worker.Queue
	images        *fakeImages
	live          *fakeLive
	published     *events.Recorder
	users         *repository.UserRepository
	reportsRepo   *repository.ReportRepository
	pointsRepo    *repository.PointsRepository
	achRepo       *repository.AchievementRepository
	notifRepo     *repository.NotificationRepository
	settings      *SettingsService
	notifications *NotificationService
	points        *PointsService
	achievements  *AchievementService
	reports       *ReportService
	userSvc       *UserService
	auth          *AuthService
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "test-access",
			RefreshSecret: "test-refresh",
			AccessExpiry:  time.Hour,
			RefreshExpiry: 24 * time.Hour,
			Issuer:        "ecoreports-test",
		},
		Points: config.PointsConfig{
			ReportBase:             10,
			ReportWithPhoto:        15,
			ReportResolved:         25,
			FirstReportBonus:       10,
			ActiveReporterBonus:    25,
			CommittedReporterBonus: 50,
			ProblemSolverPerReport: 5,
		},
		Upload: config.UploadConfig{MaxImageBytes: 1 << 20},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:        testutil.NewDB(t),
		cfg:       testConfig(),
		tasks:     worker.NewQueue(2, 64, 5*time.Second, nil),
		images:    &fakeImages{},
		live:      &fakeLive{},
		published: &events.Recorder{},
	}
	t.Cleanup(func() { _ = h.tasks.Shutdown(context.Background()) })

	h.users = repository.NewUserRepository(h.db)
	h.reportsRepo = repository.NewReportRepository(h.db)
	h.pointsRepo = repository.NewPointsRepository(h.db)
	h.achRepo = repository.NewAchievementRepository(h.db)
	h.notifRepo = repository.NewNotificationRepository(h.db)
	audit := NewAuditor(repository.NewAuditLogRepository(h.db))

	h.settings = NewSettingsService(repository.NewSettingRepository(h.db), h.cfg.Points)
	h.notifications = NewNotificationService(h.notifRepo, h.users, nil, h.live)
	h.points = NewPointsService(h.pointsRepo, h.users, h.notifications, h.tasks)
	h.achievements = NewAchievementService(h.achRepo, h.reportsRepo, h.users, h.points, h.settings, h.notifications)
	h.reports = NewReportService(ReportServiceDeps{
		Repo:          h.reportsRepo,
		UserRepo:      h.users,
		PointsRepo:    h.pointsRepo,
		Points:        h.points,
		Achievements:  h.achievements,
		Notifications: h.notifications,
		Settings:      h.settings,
		Images:        h.images,
		Publisher:     h.published,
		Live:          h.live,
		Tasks:         h.tasks,
		Audit:         audit,
		MaxImageBytes: h.cfg.Upload.MaxImageBytes,
	})
	h.userSvc = NewUserService(h.users, h.achRepo, h.achievements, h.points, h.notifications, audit)
	h.auth = NewAuthService(h.cfg, h.users, audit)
	return h
}

func (h *harness) balance(t *testing.T, userID uint) int {
	t.Helper()
	b, err := h.points.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

// pngBytes is a minimal PNG header, enough for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
