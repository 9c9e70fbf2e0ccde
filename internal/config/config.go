package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Driver names accepted by STORE_DRIVER, OBJECT_STORE_DRIVER and MAIL_DRIVER.
const (
	DriverFirestore = "firestore"
	DriverFirebase  = "firebase"
	DriverMinio     = "minio"
	DriverMemory    = "memory"
	DriverSMTP      = "smtp"
	DriverSendgrid  = "sendgrid"
	DriverLog       = "log"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string `mapstructure:"PORT"`
	GinMode  string `mapstructure:"GIN_MODE"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	ClientURL string `mapstructure:"CLIENT_URL"`

	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	FirebaseWebAPIKey                string `mapstructure:"FIREBASE_WEB_API_KEY"`
	FirebaseStorageBucket            string `mapstructure:"FIREBASE_STORAGE_BUCKET"`

	StoreDriver       string `mapstructure:"STORE_DRIVER"`
	ObjectStoreDriver string `mapstructure:"OBJECT_STORE_DRIVER"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MinioPublicURL string `mapstructure:"MINIO_PUBLIC_URL"`

	RedisAddr            string        `mapstructure:"REDIS_ADDR"`
	RedisPassword        string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB              int           `mapstructure:"REDIS_DB"`
	SubscriptionCacheTTL time.Duration `mapstructure:"SUBSCRIPTION_CACHE_TTL"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	NotificationsQueue string `mapstructure:"NOTIFICATIONS_QUEUE"`

	MailDriver     string `mapstructure:"MAIL_DRIVER"`
	SMTPHost       string `mapstructure:"SMTP_HOST"`
	SMTPPort       string `mapstructure:"SMTP_PORT"`
	SMTPUser       string `mapstructure:"SMTP_USER"`
	SMTPPass       string `mapstructure:"SMTP_PASS"`
	MailFrom       string `mapstructure:"MAIL_FROM"`
	SendgridAPIKey string `mapstructure:"SENDGRID_API_KEY"`

	UPIID          string `mapstructure:"UPI_ID"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`
	MaxDoubtImages int    `mapstructure:"MAX_DOUBT_IMAGES"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

var defaults = map[string]interface{}{
	"PORT":                   "8080",
	"GIN_MODE":               "debug",
	"LOG_LEVEL":              "info",
	"STORE_DRIVER":           DriverFirestore,
	"OBJECT_STORE_DRIVER":    DriverFirebase,
	"MINIO_BUCKET":           "doubtsolver",
	"SUBSCRIPTION_CACHE_TTL": "60s",
	"NOTIFICATIONS_QUEUE":    "doubtsolver.notifications",
	"MAIL_DRIVER":            DriverLog,
	"SMTP_PORT":              "2525",
	"MAIL_FROM":              "noreply@doubtsolver.app",
	"UPI_ID":                 "doubtsolver@upi",
	"MAX_UPLOAD_BYTES":       5 * 1024 * 1024,
	"MAX_DOUBT_IMAGES":       3,
	"METRICS_ENABLED":        true,
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Unmarshal only sees keys viper knows about, so every field is bound explicitly.
	for _, key := range []string{
		"CLIENT_URL",
		"FIREBASE_PROJECT_ID",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
		"FIREBASE_WEB_API_KEY",
		"FIREBASE_STORAGE_BUCKET",
		"MINIO_ENDPOINT",
		"MINIO_ACCESS_KEY",
		"MINIO_SECRET_KEY",
		"MINIO_USE_SSL",
		"MINIO_PUBLIC_URL",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"RABBITMQ_URL",
		"SMTP_HOST",
		"SMTP_USER",
		"SMTP_PASS",
		"SENDGRID_API_KEY",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsesFirebase reports whether any selected driver needs the Firebase Admin SDK.
func (c *Config) UsesFirebase() bool {
	return c.StoreDriver == DriverFirestore || c.ObjectStoreDriver == DriverFirebase
}

// Validate checks required fields for the selected drivers.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverFirestore, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverFirestore, DriverMemory, c.StoreDriver)
	}

	switch c.ObjectStoreDriver {
	case DriverFirebase:
		if c.FirebaseStorageBucket == "" {
			return errors.New("FIREBASE_STORAGE_BUCKET is required when OBJECT_STORE_DRIVER=firebase")
		}
	case DriverMinio:
		if c.MinioEndpoint == "" {
			return errors.New("MINIO_ENDPOINT is required when OBJECT_STORE_DRIVER=minio")
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when OBJECT_STORE_DRIVER=minio")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown OBJECT_STORE_DRIVER %q", c.ObjectStoreDriver)
	}

	if c.UsesFirebase() && c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}

	switch c.MailDriver {
	case DriverSMTP:
		if c.SMTPHost == "" || c.SMTPUser == "" || c.SMTPPass == "" {
			return errors.New("SMTP_HOST, SMTP_USER and SMTP_PASS are required when MAIL_DRIVER=smtp")
		}
	case DriverSendgrid:
		if c.SendgridAPIKey == "" {
			return errors.New("SENDGRID_API_KEY is required when MAIL_DRIVER=sendgrid")
		}
	case DriverLog:
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxDoubtImages < 0 {
		return errors.New("MAX_DOUBT_IMAGES cannot be negative")
	}
	return nil
}
