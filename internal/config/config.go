package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ObjectStore ObjectStoreConfig
	Classifier  ClassifierConfig
	LLM         LLMConfig
	JWT         JWTConfig
	Log         LogConfig
	Tracing     TracingConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Intake      IntakeConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s Timezone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL for cached reference data (doctor and department lists).
	ReferenceTTL time.Duration
}

type ObjectStoreConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ClassifierConfig points at the external skin-analysis service.
type ClassifierConfig struct {
	BaseURL string
	Timeout time.Duration
	// MaxImageBytes caps uploads before they ever reach the classifier.
	MaxImageBytes int64
}

// LLMConfig points at the external language-model service used for triage.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	OTLPURL     string
	SampleRate  float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type RateLimitConfig struct {
	// Global Rate limit per instance
	RequestsPerSecond float64
	BurstSize         int
	// Auth endpoints have stricter limits
	AuthRequestsPerMinute int
}

// IntakeConfig groups clinic scheduling policy knobs.
type IntakeConfig struct {
	// Appointments may only be booked between these hours (inclusive start,
	// exclusive end), local clinic time.
	OpeningHour int
	ClosingHour int
}

func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "intake-api"),
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.0.0"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "intake"),
			User:            getEnv("DB_USER", "intake"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			ReferenceTTL: getEnvDuration("REDIS_REFERENCE_TTL", 10*time.Minute),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			Region:       getEnv("S3_REGION", "us-east-1"),
			Bucket:       getEnv("S3_BUCKET", "intake-images"),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", true),
		},
		Classifier: ClassifierConfig{
			BaseURL:       getEnv("CLASSIFIER_URL", "http://localhost:9000"),
			Timeout:       getEnvDuration("CLASSIFIER_TIMEOUT", 20*time.Second),
			MaxImageBytes: int64(getEnvInt("CLASSIFIER_MAX_IMAGE_BYTES", 8<<20)),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_URL", "https://generativelanguage.googleapis.com"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "gemini-2.0-flash"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnv("JWT_ISSUER", "intake-api"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", true),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "intake-api"),
			OTLPURL:     getEnv("OTLP_ENDPOINT", "http://jaeger-collector:14268/api/traces"),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"https://app.clinicflow.io"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvDuration("CORS_MAX_AGE", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:     getEnvFloat("RATE_LIMIT_RPS", 100),
			BurstSize:             getEnvInt("RATE_LIMIT_BURST", 200),
			AuthRequestsPerMinute: getEnvInt("RATE_LIMIT_AUTH_RPM", 10),
		},
		Intake: IntakeConfig{
			OpeningHour: getEnvInt("CLINIC_OPENING_HOUR", 9),
			ClosingHour: getEnvInt("CLINIC_CLOSING_HOUR", 18),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces production security requirements.
func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.Environment == "production" {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	if cfg.Database.Password == "" && cfg.App.Environment != "development" {
		errs = append(errs, "DB_PASSWORD is required in non-development environments")
	}

	if cfg.Database.SSLMode == "disable" && cfg.App.Environment == "production" {
		errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
	}

	if cfg.LLM.APIKey == "" && cfg.App.Environment == "production" {
		errs = append(errs, "LLM_API_KEY is required in production")
	}

	if cfg.Intake.OpeningHour < 0 || cfg.Intake.ClosingHour > 24 || cfg.Intake.OpeningHour >= cfg.Intake.ClosingHour {
		errs = append(errs, "clinic hours are invalid")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
