package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "order-events", cfg.OrderTopic)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"JWT_SECRET":     "s3cret",
		"PORT":           "9090",
		"STORAGE_DRIVER": "Postgres",
		"KAFKA_BROKERS":  "k1:9092, k2:9092,",
		"ADMIN_EMAILS":   "Ops@Example.com,boss@example.com",
		"TOKEN_TTL":      "168h",
		"LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 168*time.Hour, cfg.TokenTTL)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.True(t, cfg.IsAdminEmail("OPS@example.com "))
	assert.False(t, cfg.IsAdminEmail("someone@example.com"))
}

func TestInvalidValuesAreReportedTogether(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"STORAGE_DRIVER": "sqlite",
		"TOKEN_TTL":      "forever",
		"PORT":           "http",
	}))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "STORAGE_DRIVER")
	assert.Contains(t, msg, "TOKEN_TTL")
	assert.Contains(t, msg, "PORT")
	assert.Contains(t, msg, "JWT_SECRET")
}

func TestAuditFromLookup(t *testing.T) {
	cfg, err := AuditFromLookup(lookupFrom(map[string]string{
		"KAFKA_BROKERS":  "k1:9092,k2:9092",
		"AUDIT_GROUP_ID": "audit-eu",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "order-events", cfg.OrderTopic)
	assert.Equal(t, "audit-eu", cfg.GroupID)

	_, err = AuditFromLookup(lookupFrom(map[string]string{"KAFKA_BROKERS": " , ", "LOG_LEVEL": "loud"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS is required")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}
