package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server struct {
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		AllowedOrigins  []string
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	JWT struct {
		SecretKey string
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Redis struct {
		URL     string
		LockTTL time.Duration
	}
	Kafka struct {
		Brokers   []string
		BankTopic string
		GroupID   string
		Topics    map[string]string // event type -> topic
	}
	Scoring struct {
		GraceDays             int
		CountUnverifiedManual bool
	}
	Share struct {
		BaseURL         string
		RateLimit       int
		RateLimitWindow time.Duration
	}
	Scheduler struct {
		Enabled  bool
		Interval time.Duration
	}
	Log struct {
		Dir   string
		Debug bool
	}
}

// NewConfig builds the configuration from defaults, an optional config.yaml
// and environment variables (SERVER_PORT, DB_HOST, ...).
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", "")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "rentscore")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("jwt.secret_key", "change-me")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@rentscore.co.uk")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", "10s")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.bank_topic", "payments.bank_synced")
	v.SetDefault("kafka.group_id", "rentscore")
	v.SetDefault("kafka.topic_prefix", "rentscore.")

	v.SetDefault("scoring.grace_days", 3)
	v.SetDefault("scoring.count_unverified_manual", true)

	v.SetDefault("share.base_url", "http://localhost:8080")
	v.SetDefault("share.rate_limit", 30)
	v.SetDefault("share.rate_limit_window", "1m")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "6h")

	v.SetDefault("log.dir", "")
	v.SetDefault("log.debug", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	// Server
	cfg.Server.Port = v.GetInt("server.port")
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d is out of range", cfg.Server.Port)
	}
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	cfg.Server.AllowedOrigins = splitCSV(v.GetString("server.allowed_origins"))

	// Database
	cfg.DB.Host = v.GetString("db.host")
	cfg.DB.Port = v.GetInt("db.port")
	if cfg.DB.Port <= 0 || cfg.DB.Port > 65535 {
		return nil, fmt.Errorf("database port %d is out of range", cfg.DB.Port)
	}
	cfg.DB.User = v.GetString("db.user")
	cfg.DB.Password = v.GetString("db.password")
	cfg.DB.DBName = v.GetString("db.name")
	cfg.DB.SSLMode = v.GetString("db.sslmode")

	cfg.JWT.SecretKey = v.GetString("jwt.secret_key")
	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY must not be empty")
	}

	// SMTP, empty host disables e-mail notifications
	cfg.SMTP.Host = v.GetString("smtp.host")
	cfg.SMTP.Port = v.GetInt("smtp.port")
	cfg.SMTP.Username = v.GetString("smtp.username")
	cfg.SMTP.Password = v.GetString("smtp.password")
	cfg.SMTP.From = v.GetString("smtp.from")

	cfg.Redis.URL = v.GetString("redis.url")
	cfg.Redis.LockTTL = v.GetDuration("redis.lock_ttl")

	// Kafka
	cfg.Kafka.Brokers = splitCSV(v.GetString("kafka.brokers"))
	cfg.Kafka.BankTopic = v.GetString("kafka.bank_topic")
	cfg.Kafka.GroupID = v.GetString("kafka.group_id")
	prefix := v.GetString("kafka.topic_prefix")
	cfg.Kafka.Topics = map[string]string{
		"badge.earned":     prefix + "badge-earned",
		"report.generated": prefix + "report-generated",
		"report.shared":    prefix + "report-shared",
	}

	// Scoring
	cfg.Scoring.GraceDays = v.GetInt("scoring.grace_days")
	if cfg.Scoring.GraceDays < 0 || cfg.Scoring.GraceDays > 31 {
		return nil, fmt.Errorf("invalid SCORING_GRACE_DAYS %d", cfg.Scoring.GraceDays)
	}
	cfg.Scoring.CountUnverifiedManual = v.GetBool("scoring.count_unverified_manual")

	cfg.Share.BaseURL = strings.TrimRight(v.GetString("share.base_url"), "/")
	cfg.Share.RateLimit = v.GetInt("share.rate_limit")
	cfg.Share.RateLimitWindow = v.GetDuration("share.rate_limit_window")

	cfg.Scheduler.Enabled = v.GetBool("scheduler.enabled")
	cfg.Scheduler.Interval = v.GetDuration("scheduler.interval")
	if cfg.Scheduler.Enabled && cfg.Scheduler.Interval <= 0 {
		return nil, errors.New("SCHEDULER_INTERVAL must be positive")
	}

	cfg.Log.Dir = v.GetString("log.dir")
	cfg.Log.Debug = v.GetBool("log.debug")

	return cfg, nil
}

// DSN returns the gorm connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// MigrationURL returns the connection URL used by golang-migrate
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.DBName, c.DB.SSLMode)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
