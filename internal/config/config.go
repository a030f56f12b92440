package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendRedis    = "redis"
	BackendDatabase = "database"

	EmailProviderSMTP     = "smtp"
	EmailProviderSendGrid = "sendgrid"
)

const (
	maxArgon2MemoryKiB = 4 * 1024 * 1024 // 4 GiB
	maxArgon2Time      = 64
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins for cookie auth
}

type DatabaseConfig struct {
	Driver         string // postgres or sqlite
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ChannelBinding string // "require" for Neon DB, empty for local
	SQLitePath     string
	MaxOpenConns   int
	AutoMigrate    bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	// Where sessions and password reset tokens live: redis or database
	StoreBackend      string
	SessionDuration   time.Duration
	SessionCookieName string
	// Optional PASETO v4.local key used to seal session cookies (32 bytes)
	SessionCookieKey   []byte
	ResetTokenDuration time.Duration
	// Answer forgot-password requests for unknown emails with the generic success message
	ConcealUnknownEmail bool
	Argon2Memory        uint32 // KiB
	Argon2Time          uint32
	Argon2Threads       uint8
}

type EmailConfig struct {
	Provider       string
	SMTPHost       string
	SMTPPort       string
	SMTPUser       string
	SMTPPassword   string
	SendGridAPIKey string
	FromAddress    string
	FromName       string
	BaseURL        string // Public URL used to build password reset links
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	argon2Memory, err := getUintEnv("ARGON2_MEMORY_KIB", 19456, 32)
	if err != nil {
		return nil, err
	}
	argon2Time, err := getUintEnv("ARGON2_TIME", 2, 32)
	if err != nil {
		return nil, err
	}
	argon2Threads, err := getUintEnv("ARGON2_THREADS", 1, 8)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Driver:         getEnv("DB_DRIVER", DriverPostgres),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "sessionauth"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			ChannelBinding: getEnv("DB_CHANNEL_BINDING", ""),
			SQLitePath:     getEnv("DB_SQLITE_PATH", "sessionauth.db"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
			AutoMigrate:    getBoolEnv("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			StoreBackend:        getEnv("AUTH_STORE_BACKEND", BackendRedis),
			SessionDuration:     getDurationEnv("SESSION_DURATION", 30*24*time.Hour),
			SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "auth_session"),
			SessionCookieKey:    []byte(getEnv("SESSION_COOKIE_KEY", "")),
			ResetTokenDuration:  getDurationEnv("RESET_TOKEN_DURATION", 2*time.Hour),
			ConcealUnknownEmail: getBoolEnv("AUTH_CONCEAL_UNKNOWN_EMAIL", true),
			Argon2Memory:        uint32(argon2Memory),
			Argon2Time:          uint32(argon2Time),
			Argon2Threads:       uint8(argon2Threads),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", EmailProviderSMTP),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUser:       getEnv("SMTP_USER", ""),
			SMTPPassword:   getEnv("SMTP_PASS", ""),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromAddress:    getEnv("EMAIL_FROM", "no-reply@example.com"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Accounts"),
			BaseURL:        strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	switch c.Auth.StoreBackend {
	case BackendRedis, BackendDatabase:
	default:
		return fmt.Errorf("AUTH_STORE_BACKEND must be %q or %q, got %q", BackendRedis, BackendDatabase, c.Auth.StoreBackend)
	}

	switch c.Email.Provider {
	case EmailProviderSMTP, EmailProviderSendGrid:
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be %q or %q, got %q", EmailProviderSMTP, EmailProviderSendGrid, c.Email.Provider)
	}

	if c.Email.Provider == EmailProviderSendGrid && c.Email.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required when EMAIL_PROVIDER=%s", EmailProviderSendGrid)
	}

	// PASETO v4.local keys are exactly 32 bytes; an empty key disables sealing
	if n := len(c.Auth.SessionCookieKey); n != 0 && n != 32 {
		return fmt.Errorf("SESSION_COOKIE_KEY must be exactly 32 bytes, got %d", n)
	}

	if c.Auth.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}
	if c.Auth.ResetTokenDuration <= 0 {
		return fmt.Errorf("RESET_TOKEN_DURATION must be positive")
	}
	if c.Auth.Argon2Memory < 19456 || c.Auth.Argon2Time < 2 || c.Auth.Argon2Threads < 1 {
		return fmt.Errorf("argon2 parameters below the minimum (m=19456 KiB, t=2, p=1)")
	}
	if c.Auth.Argon2Memory > maxArgon2MemoryKiB || c.Auth.Argon2Time > maxArgon2Time {
		return fmt.Errorf("argon2 parameters above the maximum (m=%d KiB, t=%d)", maxArgon2MemoryKiB, maxArgon2Time)
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", c.SQLitePath)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getUintEnv parses an unsigned integer that must fit in bitSize bits.
// Bad values are errors, not defaults.
func getUintEnv(key string, defaultValue uint64, bitSize int) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	uintValue, err := strconv.ParseUint(value, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned %d-bit integer, got %q", key, bitSize, value)
	}

	return uintValue, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolValue
}

// getDurationEnv reads a whole number of seconds
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
