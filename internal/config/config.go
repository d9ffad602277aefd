// Package config loads forestwatch settings from a YAML file overlaid with
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"forestwatch/internal/alert"
	"forestwatch/internal/auth"
	"forestwatch/internal/ingest"
	"forestwatch/internal/notify"
	"forestwatch/internal/snapshot"
	"forestwatch/internal/storage"
	"forestwatch/pkg/log"
)

// Config is the full service configuration
type Config struct {
	Logger struct {
		Level        string `yaml:"level" env:"LOG_LEVEL"`
		Mode         string `yaml:"mode" env:"LOG_MODE"`
		Encoding     string `yaml:"encoding" env:"LOG_ENCODING"`
		ColorEnabled bool   `yaml:"color_enabled" env:"LOG_COLOR"`
	} `yaml:"logger"`

	Server struct {
		Host     string `yaml:"host" env:"SERVER_HOST"`
		HTTPPort int    `yaml:"http_port" env:"HTTP_PORT"`
		GRPCPort int    `yaml:"grpc_port" env:"GRPC_PORT"`
	} `yaml:"server"`

	Alert struct {
		Label              string        `yaml:"label" env:"ALERT_LABEL"`
		MinConfidence      float64       `yaml:"min_confidence" env:"ALERT_MIN_CONFIDENCE"`
		Hold               time.Duration `yaml:"hold" env:"ALERT_HOLD"`
		Cooldown           time.Duration `yaml:"cooldown" env:"ALERT_COOLDOWN"`
		Pulse              time.Duration `yaml:"pulse" env:"ALERT_PULSE"`
		ResetHoldOnFailure bool          `yaml:"reset_hold_on_failure" env:"ALERT_RESET_HOLD_ON_FAILURE"`
	} `yaml:"alert"`

	Snapshot struct {
		Dir     string `yaml:"dir" env:"SNAPSHOT_DIR"`
		Quality int    `yaml:"quality" env:"SNAPSHOT_QUALITY"`
		Overlay string `yaml:"overlay" env:"SNAPSHOT_OVERLAY"`
	} `yaml:"snapshot"`

	Email struct {
		Enabled    bool          `yaml:"enabled" env:"SMTP_ENABLED"`
		Host       string        `yaml:"host" env:"SMTP_HOST"`
		Port       int           `yaml:"port" env:"SMTP_PORT"`
		Username   string        `yaml:"username" env:"SMTP_USERNAME"`
		Password   string        `yaml:"password" env:"SMTP_PASSWORD"`
		From       string        `yaml:"from" env:"SMTP_FROM"`
		To         []string      `yaml:"to" env:"SMTP_TO" envSeparator:","`
		UseSSL     bool          `yaml:"use_ssl" env:"SMTP_USE_SSL"`
		Timeout    time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT"`
		SystemName string        `yaml:"system_name" env:"SYSTEM_NAME"`
	} `yaml:"email"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled" env:"TELEGRAM_ENABLED"`
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`

	GPIO struct {
		Enabled bool   `yaml:"enabled" env:"GPIO_ENABLED"`
		Line    string `yaml:"line" env:"GPIO_LINE"`
	} `yaml:"gpio"`

	Database struct {
		Path      string        `yaml:"path" env:"DATABASE_PATH"`
		Retention time.Duration `yaml:"retention" env:"DATABASE_RETENTION"`
	} `yaml:"database"`

	Kafka struct {
		Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	} `yaml:"kafka"`

	Minio struct {
		Enabled   bool   `yaml:"enabled" env:"MINIO_ENABLED"`
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL"`
		Prefix    string `yaml:"prefix" env:"MINIO_PREFIX"`
	} `yaml:"minio"`

	Auth struct {
		Enabled     bool          `yaml:"enabled" env:"AUTH_ENABLED"`
		Username    string        `yaml:"username" env:"AUTH_USERNAME"`
		Password    string        `yaml:"password" env:"AUTH_PASSWORD"`
		JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET"`
		TokenExpiry time.Duration `yaml:"token_expiry" env:"JWT_EXPIRY"`
	} `yaml:"auth"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	cfg := &Config{}

	cfg.Logger.Level = log.LevelInfo
	cfg.Logger.Mode = log.ModeProduction
	cfg.Logger.Encoding = log.EncodingConsole

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.HTTPPort = 8080
	cfg.Server.GRPCPort = 9090

	a := alert.DefaultConfig()
	cfg.Alert.Label = a.Label
	cfg.Alert.MinConfidence = a.MinConfidence
	cfg.Alert.Hold = a.Hold
	cfg.Alert.Cooldown = a.Cooldown
	cfg.Alert.Pulse = a.Pulse

	cfg.Snapshot.Dir = "alerts"
	cfg.Snapshot.Quality = snapshot.DefaultQuality
	cfg.Snapshot.Overlay = snapshot.DefaultOverlay

	cfg.Email.Enabled = true
	cfg.Email.Host = "smtp.gmail.com"
	cfg.Email.Port = 465
	cfg.Email.UseSSL = true
	cfg.Email.Timeout = 30 * time.Second
	cfg.Email.SystemName = "Forest Surveillance System"

	cfg.GPIO.Line = "GPIO27"

	cfg.Database.Path = "forestwatch.db"
	cfg.Database.Retention = 30 * 24 * time.Hour

	cfg.Kafka.GroupID = "forestwatch"
	cfg.Kafka.Topic = "frame-events"

	cfg.Minio.Bucket = "forestwatch-alerts"

	cfg.Auth.Username = "admin"
	cfg.Auth.TokenExpiry = 24 * time.Hour

	return cfg
}

// Load reads the YAML file at path (optional) and applies environment
// overrides on top of the defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Alert.MinConfidence <= 0 || c.Alert.MinConfidence >= 1 {
		errs = append(errs, fmt.Errorf("alert.min_confidence must be in (0,1), got %v", c.Alert.MinConfidence))
	}
	if c.Alert.Hold <= 0 || c.Alert.Cooldown <= 0 || c.Alert.Pulse <= 0 {
		errs = append(errs, errors.New("alert.hold, alert.cooldown and alert.pulse must be positive"))
	}
	if c.Email.Enabled {
		if err := notify.ValidateEmailConfig(c.EmailConfig()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Telegram.Enabled {
		if err := notify.ValidateTelegramConfig(c.TelegramConfig()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.GPIO.Enabled && c.GPIO.Line == "" {
		errs = append(errs, errors.New("gpio.line is required when gpio is enabled"))
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("kafka.brokers and kafka.topic are required when kafka is enabled"))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.Bucket == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucket are required when minio is enabled"))
	}
	if c.Auth.Enabled && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth.password is required when auth is enabled"))
	}

	return errors.Join(errs...)
}

// LoggerConfig returns the zap logger settings
func (c *Config) LoggerConfig() log.ZapConfig {
	return log.ZapConfig{
		Level:        c.Logger.Level,
		Mode:         c.Logger.Mode,
		Encoding:     c.Logger.Encoding,
		ColorEnabled: c.Logger.ColorEnabled,
	}
}

// AlertConfig returns the alert controller thresholds
func (c *Config) AlertConfig() alert.Config {
	return alert.Config{
		Label:              c.Alert.Label,
		MinConfidence:      c.Alert.MinConfidence,
		Hold:               c.Alert.Hold,
		Cooldown:           c.Alert.Cooldown,
		Pulse:              c.Alert.Pulse,
		ResetHoldOnFailure: c.Alert.ResetHoldOnFailure,
	}
}

// SnapshotConfig returns the snapshot writer settings
func (c *Config) SnapshotConfig() snapshot.Config {
	return snapshot.Config{
		Dir:     c.Snapshot.Dir,
		Quality: c.Snapshot.Quality,
		Overlay: c.Snapshot.Overlay,
	}
}

// EmailConfig returns the SMTP settings
func (c *Config) EmailConfig() notify.EmailConfig {
	return notify.EmailConfig{
		Enabled:    c.Email.Enabled,
		Host:       c.Email.Host,
		Port:       c.Email.Port,
		Username:   c.Email.Username,
		Password:   c.Email.Password,
		From:       c.Email.From,
		To:         c.Email.To,
		UseSSL:     c.Email.UseSSL,
		Timeout:    c.Email.Timeout,
		SystemName: c.Email.SystemName,
	}
}

// TelegramConfig returns the Telegram bot settings
func (c *Config) TelegramConfig() notify.TelegramConfig {
	return notify.TelegramConfig{
		Enabled:  c.Telegram.Enabled,
		BotToken: c.Telegram.BotToken,
		ChatID:   c.Telegram.ChatID,
	}
}

// KafkaConfig returns the frame-event consumer settings
func (c *Config) KafkaConfig() ingest.KafkaConfig {
	return ingest.KafkaConfig{
		Enabled: c.Kafka.Enabled,
		Brokers: c.Kafka.Brokers,
		GroupID: c.Kafka.GroupID,
		Topic:   c.Kafka.Topic,
	}
}

// StorageConfig returns the snapshot mirror settings
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Enabled:   c.Minio.Enabled,
		Endpoint:  c.Minio.Endpoint,
		AccessKey: c.Minio.AccessKey,
		SecretKey: c.Minio.SecretKey,
		Bucket:    c.Minio.Bucket,
		UseSSL:    c.Minio.UseSSL,
		Prefix:    c.Minio.Prefix,
	}
}

// AuthConfig returns the API authentication settings
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		Enabled:     c.Auth.Enabled,
		Username:    c.Auth.Username,
		Password:    c.Auth.Password,
		JWTSecret:   c.Auth.JWTSecret,
		TokenExpiry: c.Auth.TokenExpiry,
	}
}
