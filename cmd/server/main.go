package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecoreports/config"
	"ecoreports/internal/database"
	"ecoreports/internal/events"
	"ecoreports/internal/metrics"
	"ecoreports/internal/router"
	"ecoreports/internal/service"
	"ecoreports/internal/worker"
	"ecoreports/internal/ws"
	"ecoreports/pkg/cloudinary"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" {
		log.Fatal("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	if err := database.SeedAchievements(db); err != nil {
		log.WithError(err).Fatal("seed achievements")
	}
	if err := database.SeedAdmin(db, &cfg.Admin); err != nil {
		log.WithError(err).Error("seed admin")
	}

	metrics.Register()
	tasks := worker.NewQueue(cfg.Tasks.Workers, cfg.Tasks.QueueSize, cfg.Tasks.TaskTimeout, metrics.TaskObserver{})

	infra := router.Infra{
		Publisher: events.Noop{},
		FCM:       service.NewFCMService(cfg.Firebase.ServiceAccountPath),
		Hub:       ws.NewHub(),
		Tasks:     tasks,
	}
	if cfg.AMQP.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.ExchangeType)
		if err != nil {
			log.WithError(err).Warn("amqp unavailable, domain events disabled")
		} else {
			infra.Publisher = pub
		}
	}
	if cfg.Cloudinary.CloudName != "" {
		images, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		if err != nil {
			log.WithError(err).Fatal("cloudinary")
		}
		infra.Images = images
	} else {
		log.Warn("cloudinary not configured, reports will be stored without photos")
	}

	svcs := router.NewServices(cfg, db, infra)
	engine := router.Setup(cfg, db, svcs, infra)

	bg, stopBackground := context.WithCancel(context.Background())
	retention := service.NewRetentionScheduler(svcs.Notifications, cfg.Retention.Days, cfg.Retention.Interval)
	go retention.Run(bg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	if err := tasks.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("background tasks did not drain")
	}
	if err := infra.Publisher.Close(); err != nil {
		log.WithError(err).Warn("close publisher")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server stopped")
}

func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetHandler(jsonhandler.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
