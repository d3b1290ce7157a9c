package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port         string
	CORSOrigins  string
	PrimaryHost  string
	AppEnv       string
	SentryDSN    string
	SupportEmail string

	// Billing webhook shared secret
	BillingWebhookSecret string

	// Redis page cache (empty addr = in-process cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PageCacheTTL  time.Duration

	// Kafka (empty brokers = in-process delivery)
	KafkaBrokers         []string
	KafkaAnalyticsTopic  string
	KafkaAutomationTopic string
	KafkaGroupID         string

	// Automation
	ProvidersConfigPath string
	AutomationWorkers   int
	AutomationTimeout   time.Duration
	AutomationAttempts  int
	SchedulerInterval   time.Duration

	// Intake storage: "local" or "s3"
	StorageDriver  string
	IntakeDir      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	MaxUploadMB    int
	MaxUploadFiles int

	// SMTP (empty host = log-only mailer)
	SMTPHost          string
	SMTPPort          string
	SMTPUser          string
	SMTPPassword      string
	SMTPFrom          string
	IntakeNotifyEmail string

	// Retention
	LogRetentionDays      int
	EventLogRetentionDays int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "linkmarket_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		PrimaryHost:  getEnv("PRIMARY_HOST", "localhost"),
		AppEnv:       getEnv("APP_ENV", "development"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		SupportEmail: getEnv("SUPPORT_EMAIL", "support@linkmarket.co.za"),

		BillingWebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		PageCacheTTL:  parseDuration(getEnv("PAGE_CACHE_TTL", "10m"), 10*time.Minute),

		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaAnalyticsTopic:  getEnv("KAFKA_ANALYTICS_TOPIC", "biolink-analytics"),
		KafkaAutomationTopic: getEnv("KAFKA_AUTOMATION_TOPIC", "automation-events"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "linkmarket-automation"),

		ProvidersConfigPath: getEnv("PROVIDERS_CONFIG_PATH", ""),
		AutomationWorkers:   getEnvInt("AUTOMATION_WORKERS", 4),
		AutomationTimeout:   parseDuration(getEnv("AUTOMATION_TIMEOUT", "15s"), 15*time.Second),
		AutomationAttempts:  getEnvInt("AUTOMATION_ATTEMPTS", 3),
		SchedulerInterval:   parseDuration(getEnv("SCHEDULER_INTERVAL", "1m"), time.Minute),

		StorageDriver:  getEnv("STORAGE_DRIVER", "local"),
		IntakeDir:      getEnv("INTAKE_DIR", "intake"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "af-south-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 10),
		MaxUploadFiles: getEnvInt("MAX_UPLOAD_FILES", 10),

		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnv("SMTP_PORT", "587"),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:          getEnv("SMTP_FROM", "no-reply@linkmarket.co.za"),
		IntakeNotifyEmail: getEnv("INTAKE_NOTIFY_EMAIL", ""),

		LogRetentionDays:      getEnvInt("LOG_RETENTION_DAYS", 30),
		EventLogRetentionDays: getEnvInt("EVENT_LOG_RETENTION_DAYS", 90),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer env value, using default", "key", key, "value", val)
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
