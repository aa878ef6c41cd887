package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// MySQL, for notification records and durable history
	Database DatabaseConfig `json:"database"`

	// MongoDB, for per-user preferences (the host app's document store)
	MongoDB MongoConfig `json:"mongodb"`

	// Redis, optional backing for the TTL cache
	Redis RedisConfig `json:"redis"`

	// Firebase Cloud Messaging, for the push channel
	Firebase FirebaseConfig `json:"firebase"`

	Notification NotificationConfig `json:"notification"`

	Realtime RealtimeConfig `json:"realtime"`

	Email EmailConfig `json:"email"`

	SMS SMSConfig `json:"sms"`
}

type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

type MongoConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

type FirebaseConfig struct {
	ProjectID           string `json:"project_id"`
	CredentialsFilePath string `json:"credentials_file_path"`
	Enabled             bool   `json:"enabled"`
}

type NotificationConfig struct {
	QueueInterval time.Duration `json:"queue_interval"` // periodic drain tick
	MaxAttempts   int           `json:"max_attempts"`
	RetryBackoff  time.Duration `json:"retry_backoff"` // scaled by attempt count
	HistoryLimit  int           `json:"history_limit"` // entries kept per user
	HistoryMaxAge time.Duration `json:"history_max_age"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type RealtimeConfig struct {
	URL              string        `json:"url"`
	Secret           string        `json:"secret"` // handshake token signing key
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	JoinTimeout      time.Duration `json:"join_timeout"`
	ReconnectBase    time.Duration `json:"reconnect_base"`
	ReconnectMax     time.Duration `json:"reconnect_max"`
	MaxReconnects    int           `json:"max_reconnects"`
	Enabled          bool          `json:"enabled"`
}

type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	Enabled   bool   `json:"enabled"`
}

type SMSConfig struct {
	Sender  string `json:"sender"`
	Enabled bool   `json:"enabled"`
}

// FromEnv builds the configuration from environment variables with sane
// defaults for local development.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8086"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USER", "classlink"),
			Password:     getEnv("DB_PASSWORD", ""),
			DatabaseName: getEnv("DB_NAME", "classlink"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoConfig{
			Host:     getEnv("MONGO_HOST", "localhost"),
			Port:     getEnv("MONGO_PORT", "27017"),
			Username: getEnv("MONGO_USER", ""),
			Password: getEnv("MONGO_PASSWORD", ""),
			Database: getEnv("MONGO_DB", "classlink"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:           getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFilePath: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			Enabled:             getEnvBool("FIREBASE_ENABLED", false),
		},
		Notification: NotificationConfig{
			QueueInterval: getEnvDuration("NOTIFY_QUEUE_INTERVAL", 5*time.Second),
			MaxAttempts:   getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
			RetryBackoff:  getEnvDuration("NOTIFY_RETRY_BACKOFF", 30*time.Second),
			HistoryLimit:  getEnvInt("NOTIFY_HISTORY_LIMIT", 100),
			HistoryMaxAge: getEnvDuration("NOTIFY_HISTORY_MAX_AGE", 7*24*time.Hour),
			SweepInterval: getEnvDuration("NOTIFY_SWEEP_INTERVAL", time.Hour),
		},
		Realtime: RealtimeConfig{
			URL:              getEnv("REALTIME_URL", "ws://localhost:9010/ws"),
			Secret:           getEnv("REALTIME_SECRET", "dev-secret"),
			HandshakeTimeout: getEnvDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second),
			JoinTimeout:      getEnvDuration("REALTIME_JOIN_TIMEOUT", 5*time.Second),
			ReconnectBase:    getEnvDuration("REALTIME_RECONNECT_BASE", time.Second),
			ReconnectMax:     getEnvDuration("REALTIME_RECONNECT_MAX", 30*time.Second),
			MaxReconnects:    getEnvInt("REALTIME_MAX_RECONNECTS", 10),
			Enabled:          getEnvBool("REALTIME_ENABLED", true),
		},
		Email: EmailConfig{
			SMTPHost:  getEnv("SMTP_HOST", ""),
			SMTPPort:  getEnvInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USER", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "noreply@classlink.local"),
			FromName:  getEnv("SMTP_FROM_NAME", "ClassLink"),
			Enabled:   getEnvBool("EMAIL_ENABLED", false),
		},
		SMS: SMSConfig{
			Sender:  getEnv("SMS_SENDER", "ClassLink"),
			Enabled: getEnvBool("SMS_ENABLED", false),
		},
	}
}

// DSN builds the MySQL connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

// MongoURI builds the MongoDB connection string.
func (cfg *Config) MongoURI() string {
	if cfg.MongoDB.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s",
			cfg.MongoDB.Username, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s", cfg.MongoDB.Host, cfg.MongoDB.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
