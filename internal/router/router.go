package router

import (
	"time"

	"ecoreports/config"
	"ecoreports/internal/domain"
	"ecoreports/internal/events"
	"ecoreports/internal/handler"
	"ecoreports/internal/metrics"
	"ecoreports/internal/middleware"
	"ecoreports/internal/repository"
	"ecoreports/internal/service"
	"ecoreports/internal/worker"
	"ecoreports/internal/ws"
	"ecoreports/pkg/cloudinary"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Infra holds the process-wide collaborators built in main.
type Infra struct {
	Images    cloudinary.Client
	Publisher events.Publisher
	FCM       *service.FCMService
	Hub       *ws.Hub
	Tasks     *worker.Queue
	Limiter   middleware.RateLimitStore
}

// Services is the wired service graph.
type Services struct {
	Auth          *service.AuthService
	Users         *service.UserService
	Reports       *service.ReportService
	Points        *service.PointsService
	Achievements  *service.AchievementService
	Notifications *service.NotificationService
	Settings      *service.SettingsService

	userRepo *repository.UserRepository
}

func NewServices(cfg *config.Config, db *gorm.DB, infra Infra) *Services {
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	pointsRepo := repository.NewPointsRepository(db)
	achRepo := repository.NewAchievementRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	audit := service.NewAuditor(repository.NewAuditLogRepository(db))

	var live service.LivePusher
	if infra.Hub != nil {
		live = infra.Hub
	}
	settings := service.NewSettingsService(settingRepo, cfg.Points)
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, infra.FCM, live)
	pointsSvc := service.NewPointsService(pointsRepo, userRepo, notifSvc, infra.Tasks)
	achSvc := service.NewAchievementService(achRepo, reportRepo, userRepo, pointsSvc, settings, notifSvc)
	reportSvc := service.NewReportService(service.ReportServiceDeps{
		Repo:          reportRepo,
		UserRepo:      userRepo,
		PointsRepo:    pointsRepo,
		Points:        pointsSvc,
		Achievements:  achSvc,
		Notifications: notifSvc,
		Settings:      settings,
		Images:        infra.Images,
		Publisher:     infra.Publisher,
		Live:          live,
		Tasks:         infra.Tasks,
		Audit:         audit,
		MaxImageBytes: cfg.Upload.MaxImageBytes,
	})
	return &Services{
		Auth:          service.NewAuthService(cfg, userRepo, audit),
		Users:         service.NewUserService(userRepo, achRepo, achSvc, pointsSvc, notifSvc, audit),
		Reports:       reportSvc,
		Points:        pointsSvc,
		Achievements:  achSvc,
		Notifications: notifSvc,
		Settings:      settings,
		userRepo:      userRepo,
	}
}

func Setup(cfg *config.Config, db *gorm.DB, svcs *Services, infra Infra) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	r.Use(middleware.RequestInfo())

	limiter := infra.Limiter
	if limiter == nil {
		limiter = middleware.NewFixedWindowLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	healthHandler := handler.NewHealthHandler(db)
	authHandler := handler.NewAuthHandler(svcs.Auth)
	googleOAuthHandler := handler.NewGoogleOAuthHandler(cfg, svcs.Auth)
	meHandler := handler.NewMeHandler(svcs.Users)
	reportHandler := handler.NewReportHandler(svcs.Reports, cfg.Upload.MaxImageBytes)
	notificationHandler := handler.NewNotificationHandler(svcs.Notifications)
	pointsHandler := handler.NewPointsHandler(svcs.Points, svcs.Achievements)
	adminHandler := handler.NewAdminHandler(svcs.Users, svcs.Points, svcs.Settings)

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if infra.Hub != nil {
		r.GET("/ws", ws.Serve(&cfg.JWT, infra.Hub))
	}

	authMw := middleware.AuthRequired(&cfg.JWT)
	activeMw := middleware.ActiveOnly(svcs.userRepo)
	staff := middleware.RequireRole(domain.RoleAuthority, domain.RoleAdmin)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(limiter), middleware.Timeout(cfg.Server.RequestTimeout))

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/google", googleOAuthHandler.Redirect)
		authGroup.GET("/google/callback", googleOAuthHandler.Callback)
		authGroup.POST("/google/token", googleOAuthHandler.Token)
		authGroup.PATCH("/change-password", authMw, activeMw, authHandler.ChangePassword)
	}

	me := api.Group("/me")
	me.Use(authMw, activeMw)
	{
		me.GET("", meHandler.GetProfile)
		me.POST("/fcm-token", meHandler.RegisterFCMToken)
	}

	reports := api.Group("/reports")
	reports.Use(authMw, activeMw)
	{
		reports.POST("", reportHandler.Create)
		reports.GET("", reportHandler.List)
		reports.GET("/nearby", reportHandler.Nearby)
		reports.GET("/map", reportHandler.Map)
		reports.GET("/:id", reportHandler.Get)
		reports.PATCH("/:id", staff, reportHandler.Transition)
		reports.DELETE("/:id", reportHandler.Delete)
	}

	notifications := api.Group("/notifications")
	notifications.Use(authMw, activeMw)
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.PATCH("/read-all", notificationHandler.MarkAllRead)
		notifications.PATCH("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	points := api.Group("/points")
	points.Use(authMw, activeMw)
	{
		points.GET("/historial", pointsHandler.History)
		points.GET("/logros", pointsHandler.Achievements)
		points.GET("/leaderboard", pointsHandler.Leaderboard)
	}

	admin := api.Group("/admin")
	admin.Use(authMw, activeMw, adminOnly)
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.PATCH("/users/:id/active", adminHandler.SetActive)
		admin.PATCH("/users/:id/role", adminHandler.SetRole)
		admin.POST("/points/grant", adminHandler.GrantPoints)
		admin.POST("/notifications/urgent", adminHandler.BroadcastUrgent)
		admin.GET("/settings", adminHandler.ListSettings)
		admin.PUT("/settings/:key", adminHandler.UpdateSetting)
		admin.GET("/health/ledger", adminHandler.LedgerHealth)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return c
}
