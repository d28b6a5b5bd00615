package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	OAuth      OAuthConfig
	Cloudinary CloudinaryConfig
	Firebase   FirebaseConfig
	Points     PointsConfig
	Upload     UploadConfig
	Tasks      TasksConfig
	Retention  RetentionConfig
	RateLimit  RateLimitConfig
	AMQP       AMQPConfig
	Log        LogConfig
	Admin      AdminConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	CORSOrigins    []string
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

// PointsConfig holds the default points policy. Admins can override each value at
// runtime through system settings.
type PointsConfig struct {
	ReportBase             int
	ReportWithPhoto        int
	ReportResolved         int
	FirstReportBonus       int
	ActiveReporterBonus    int
	CommittedReporterBonus int
	ProblemSolverPerReport int
}

type UploadConfig struct {
	MaxImageBytes int64
}

type TasksConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

type RetentionConfig struct {
	Days     int
	Interval time.Duration
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// AMQPConfig enables report event publishing when URL is set.
type AMQPConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
}

type LogConfig struct {
	Level string
}

// AdminConfig seeds the first admin account when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func Load() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           envOr("PORT", "8080"),
			Env:            envOr("APP_ENV", "development"),
			ReadTimeout:    envOrDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   envOrDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout: envOrDuration("REQUEST_TIMEOUT", 20*time.Second),
			CORSOrigins:    parseCSV(envOr("CORS_ORIGINS", "http://localhost:5173")),
		},
		Database: DatabaseConfig{
			DSN:             envOr("DATABASE_DSN", "ecoreports:ecoreports@tcp(localhost:3306)/ecoreports?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    envOrInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    envOrInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: envOrDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret:  envOr("JWT_ACCESS_SECRET", ""),
			RefreshSecret: envOr("JWT_REFRESH_SECRET", ""),
			AccessExpiry:  envOrDuration("JWT_ACCESS_EXPIRY", 30*time.Minute),
			RefreshExpiry: envOrDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),
			Issuer:        envOr("JWT_ISSUER", "ecoreports"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     envOr("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: envOr("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  envOr("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/google/callback"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: envOr("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    envOr("CLOUDINARY_API_KEY", ""),
			APISecret: envOr("CLOUDINARY_API_SECRET", ""),
			Folder:    envOr("CLOUDINARY_FOLDER", "EcoReports/reportes"),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: envOr("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		},
		Points: PointsConfig{
			ReportBase:             envOrInt("POINTS_REPORT_BASE", 10),
			ReportWithPhoto:        envOrInt("POINTS_REPORT_WITH_PHOTO", 15),
			ReportResolved:         envOrInt("POINTS_REPORT_RESOLVED", 25),
			FirstReportBonus:       envOrInt("POINTS_BONUS_FIRST_REPORT", 10),
			ActiveReporterBonus:    envOrInt("POINTS_BONUS_ACTIVE_REPORTER", 25),
			CommittedReporterBonus: envOrInt("POINTS_BONUS_COMMITTED_REPORTER", 50),
			ProblemSolverPerReport: envOrInt("POINTS_BONUS_PROBLEM_SOLVER_PER_REPORT", 5),
		},
		Upload: UploadConfig{
			MaxImageBytes: int64(envOrInt("UPLOAD_MAX_IMAGE_BYTES", 5<<20)),
		},
		Tasks: TasksConfig{
			Workers:     envOrInt("TASK_WORKERS", 4),
			QueueSize:   envOrInt("TASK_QUEUE_SIZE", 256),
			TaskTimeout: envOrDuration("TASK_TIMEOUT", 15*time.Second),
		},
		Retention: RetentionConfig{
			Days:     envOrInt("NOTIFICATION_RETENTION_DAYS", 90),
			Interval: envOrDuration("NOTIFICATION_RETENTION_INTERVAL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Limit:  envOrInt("RATE_LIMIT", 100),
			Window: envOrDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		AMQP: AMQPConfig{
			URL:          envOr("AMQP_URL", ""),
			Exchange:     envOr("AMQP_EXCHANGE", "ecoreports"),
			ExchangeType: envOr("AMQP_EXCHANGE_TYPE", "topic"),
		},
		Log: LogConfig{
			Level: envOr("LOG_LEVEL", "info"),
		},
		Admin: AdminConfig{
			Email:    envOr("ADMIN_EMAIL", ""),
			Password: envOr("ADMIN_PASSWORD", ""),
		},
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
