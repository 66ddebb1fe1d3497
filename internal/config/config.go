package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	LogLevel                  string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	Mailer                    MailerConfig
	Video                     VideoConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	AppURL                    string
	DefaultTimezone           string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        string
	Username    string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
	DSN         string
}

// MailerConfig holds email service configuration
type MailerConfig struct {
	Transport     string
	DefaultFrom   string
	ResendAPIKey  string
	ResendBaseURL string
}

// VideoConfig holds the Daily.co room provisioning settings.
type VideoConfig struct {
	DailyAPIKey  string
	DailyBaseURL string
	RoomPrefix   string
	TokenTTL     time.Duration
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	mailerConfig := MailerConfig{
		Transport:     strings.ToLower(getEnv("MAILER_TRANSPORT", "log")),
		DefaultFrom:   getEnv("MAILER_DEFAULT_FROM", "SignBridge <appointments@signbridge.health>"),
		ResendAPIKey:  getEnv("RESEND_API_KEY", ""),
		ResendBaseURL: getEnv("RESEND_BASE_URL", "https://api.resend.com"),
	}
	switch mailerConfig.Transport {
	case "resend", "log", "none":
	default:
		return nil, fmt.Errorf("invalid MAILER_TRANSPORT %q", mailerConfig.Transport)
	}

	tokenTTL, err := strconv.Atoi(getEnv("DAILY_TOKEN_TTL_MINUTES", "120"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAILY_TOKEN_TTL_MINUTES: %w", err)
	}
	videoConfig := VideoConfig{
		DailyAPIKey:  getEnv("DAILY_API_KEY", ""),
		DailyBaseURL: getEnv("DAILY_BASE_URL", "https://api.daily.co/v1"),
		RoomPrefix:   getEnv("DAILY_ROOM_PREFIX", "appointment"),
		TokenTTL:     time.Duration(tokenTTL) * time.Minute,
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	timezone := getEnv("DEFAULT_TIMEZONE", "America/New_York")
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}

	return &Config{
		Port:                      getEnv("PORT", "3001"),
		Origin:                    getEnv("ORIGIN", "http://localhost:3000"),
		Environment:               getEnv("NODE_ENV", "development"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:                  dbConfig,
		Mailer:                    mailerConfig,
		Video:                     videoConfig,
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		AppURL:                    getEnv("APP_URL", "http://localhost:3000"),
		DefaultTimezone:           timezone,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	dbConfig := DatabaseConfig{
		Driver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		Host:     getEnv("DB_HOST", "localhost"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "signbridge"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	autoMigrate, err := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "true"))
	if err != nil {
		return dbConfig, fmt.Errorf("invalid DB_AUTO_MIGRATE: %w", err)
	}
	dbConfig.AutoMigrate = autoMigrate

	switch dbConfig.Driver {
	case "mysql":
		dbConfig.Port = getEnv("DB_PORT", "3306")
		// clientFoundRows makes RowsAffected count matched rows, which the
		// conditional status updates rely on.
		dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
			dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)
	case "postgres":
		dbConfig.Port = getEnv("DB_PORT", "5432")
		dbConfig.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			dbConfig.Host, dbConfig.Port, dbConfig.Username, dbConfig.Password, dbConfig.Name, dbConfig.SSLMode)
	case "sqlite":
		dbConfig.DSN = getEnv("DB_PATH", "signbridge.db")
	default:
		return dbConfig, fmt.Errorf("unsupported DB_DRIVER %q", dbConfig.Driver)
	}

	if dsn, ok := os.LookupEnv("DATABASE_URL"); ok && dsn != "" {
		dbConfig.DSN = dsn
	}
	return dbConfig, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
