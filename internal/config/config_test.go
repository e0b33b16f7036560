package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.CaptureLeadDays)
	assert.Equal(t, 7, cfg.NotificationLeadDays)
	assert.Equal(t, 72*time.Hour, cfg.ApprovalTokenTTL)
	assert.True(t, cfg.LowBalanceThreshold.Equal(decimal.NewFromInt(100)))
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	t.Setenv("CAPTURE_LEAD_DAYS", "3")
	t.Setenv("NOTIFICATION_LEAD_DAYS", "soon")
	t.Setenv("LOW_BALANCE_THRESHOLD", "250.50")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RUN_JOBS_IN_API", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CaptureLeadDays)
	assert.Equal(t, 7, cfg.NotificationLeadDays)
	assert.Equal(t, "250.5", cfg.LowBalanceThreshold.String())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RunJobsInAPI)
}

func TestReleaseModeRequiresSecret(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
