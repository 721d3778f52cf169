// Package config reads service settings from the environment, loading a
// local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port          string
	StorageDriver string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBTimeout  time.Duration

	MongoURI string
	MongoDB  string

	// KafkaBrokers is empty when event publishing is disabled.
	KafkaBrokers []string
	OrderTopic   string

	JWTSecret   string
	TokenTTL    time.Duration
	AdminEmails []string

	CORSOrigins    string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	LogLevel       logrus.Level
}

// Load reads the environment. A missing .env file is not an error.
func Load(logger *logrus.Logger) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.WithError(err).Warn("Failed to load .env file")
		} else {
			logger.Info(".env file loaded")
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the shape of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		StorageDriver: strings.ToLower(get("STORAGE_DRIVER", DriverMemory)),
		DBHost:        get("DB_HOST", "localhost"),
		DBPort:        get("DB_PORT", "5432"),
		DBUser:        get("DB_USER", "configurator"),
		DBPassword:    get("DB_PASSWORD", "configurator"),
		DBName:        get("DB_NAME", "configurator"),
		MongoURI:      get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       get("MONGO_DB", "configurator"),
		KafkaBrokers:  splitList(get("KAFKA_BROKERS", "")),
		OrderTopic:    get("ORDER_EVENTS_TOPIC", "order-events"),
		JWTSecret:     get("JWT_SECRET", ""),
		AdminEmails:   splitList(strings.ToLower(get("ADMIN_EMAILS", ""))),
		CORSOrigins:   get("CORS_ORIGINS", "*"),
	}

	var errs []error
	duration := func(key, fallback string) time.Duration {
		raw := get(key, fallback)
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		}
		return d
	}
	cfg.DBTimeout = duration("DB_TIMEOUT", "5s")
	cfg.TokenTTL = duration("TOKEN_TTL", "24h")
	cfg.CacheTTL = duration("CACHE_TTL", "5m")
	cfg.IdempotencyTTL = duration("IDEMPOTENCY_TTL", "24h")

	level, err := logrus.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT: %q is not a number", cfg.Port))
	}

	switch cfg.StorageDriver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER: unknown driver %q", cfg.StorageDriver))
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Audit is the configuration of the order-audit consumer.
type Audit struct {
	KafkaBrokers []string
	OrderTopic   string
	GroupID      string
	LogLevel     logrus.Level
}

func LoadAudit(logger *logrus.Logger) (*Audit, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.WithError(err).Warn("Failed to load .env file")
		}
	}
	return AuditFromLookup(os.LookupEnv)
}

func AuditFromLookup(lookup func(string) (string, bool)) (*Audit, error) {
	get := func(key, fallback string) string {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
		return fallback
	}

	cfg := &Audit{
		KafkaBrokers: splitList(get("KAFKA_BROKERS", "localhost:9092")),
		OrderTopic:   get("ORDER_EVENTS_TOPIC", "order-events"),
		GroupID:      get("AUDIT_GROUP_ID", "order-audit"),
	}

	var errs []error
	level, err := logrus.ParseLevel(get("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
