package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hugh/roombook/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	App        AppConfig
	Reminder   ReminderConfig
	Storage    StorageConfig
	Mail       MailConfig
	Calendar   CalendarConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// AppConfig holds booking-domain settings.
type AppConfig struct {
	Timezone string
	BaseURL  string
	// ActivationTTLHours bounds both activation links and password reset tokens.
	ActivationTTLHours int
}

type ReminderConfig struct {
	ScanCron       string
	MaxLeadMinutes int
}

// StorageConfig selects the attachment backend: s3, gcs, minio or memory.
type StorageConfig struct {
	Backend         string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	CredentialsFile string
	MaxUploadMB     int
}

// MailConfig is the SMTP fallback used until email settings are saved by an admin.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type CalendarConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// Location resolves the configured time zone used for wall-clock recurrence.
func (a *AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(a.Timezone)
}

func (a *AppConfig) ActivationTTL() time.Duration {
	return time.Duration(a.ActivationTTLHours) * time.Hour
}

func (r *ReminderConfig) MaxLead() time.Duration {
	return time.Duration(r.MaxLeadMinutes) * time.Minute
}

func (s *StorageConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func (m *MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "roombook")
	v.SetDefault("DATABASE_PASSWORD", "roombook_secret")
	v.SetDefault("DATABASE_NAME", "roombook")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("APP_TIMEZONE", "UTC")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("APP_ACTIVATION_TTL_HOURS", 72)
	v.SetDefault("REMINDER_SCAN_CRON", "* * * * *")
	v.SetDefault("REMINDER_MAX_LEAD_MINUTES", 10080)
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "roombook-attachments")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_MAX_UPLOAD_MB", 10)
	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 1025)
	v.SetDefault("MAIL_FROM", "rooms@example.com")
	v.SetDefault("MAIL_FROM_NAME", "Room Booking")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		App: AppConfig{
			Timezone:           v.GetString("APP_TIMEZONE"),
			BaseURL:            v.GetString("APP_BASE_URL"),
			ActivationTTLHours: v.GetInt("APP_ACTIVATION_TTL_HOURS"),
		},
		Reminder: ReminderConfig{
			ScanCron:       v.GetString("REMINDER_SCAN_CRON"),
			MaxLeadMinutes: v.GetInt("REMINDER_MAX_LEAD_MINUTES"),
		},
		Storage: StorageConfig{
			Backend:         v.GetString("STORAGE_BACKEND"),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("STORAGE_USE_SSL"),
			CredentialsFile: v.GetString("STORAGE_CREDENTIALS_FILE"),
			MaxUploadMB:     v.GetInt("STORAGE_MAX_UPLOAD_MB"),
		},
		Mail: MailConfig{
			Host:     v.GetString("MAIL_HOST"),
			Port:     v.GetInt("MAIL_PORT"),
			Username: v.GetString("MAIL_USERNAME"),
			Password: v.GetString("MAIL_PASSWORD"),
			From:     v.GetString("MAIL_FROM"),
			FromName: v.GetString("MAIL_FROM_NAME"),
		},
		Calendar: CalendarConfig{
			GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.App.Location(); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	if err := util.ValidateCronExpr(c.Reminder.ScanCron); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_SCAN_CRON: %w", err))
	}
	if c.Reminder.MaxLeadMinutes <= 0 {
		errs = append(errs, errors.New("REMINDER_MAX_LEAD_MINUTES must be positive"))
	}
	switch c.Storage.Backend {
	case "memory", "s3", "gcs", "minio":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: unsupported backend %q", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
