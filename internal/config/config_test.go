package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg := Load()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 0.10, cfg.Order.TaxRate)
	assert.Equal(t, 10.0, cfg.Order.DefaultShipping)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.Backoff)
	assert.Equal(t, "weekly", cfg.LogReport.Frequency)
	assert.Empty(t, cfg.LogReport.Recipients)
	assert.False(t, cfg.Firebase.Configured())
	assert.Equal(t, 5, cfg.Inventory.Threshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("ORDER_TAX_RATE", "0.2")
	t.Setenv("QUEUE_BACKOFF", "500ms")
	t.Setenv("LOG_REPORT_ENABLED", "true")
	t.Setenv("LOG_REPORT_RECIPIENTS", "a@x.io,b@x.io")
	t.Setenv("FIREBASE_PROJECT_ID", "proj")
	t.Setenv("FIREBASE_PRIVATE_KEY", `line1\nline2`)
	t.Setenv("QUEUE_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 0.2, cfg.Order.TaxRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.Backoff)
	assert.True(t, cfg.LogReport.Enabled)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.LogReport.Recipients)
	assert.Equal(t, "line1\nline2", cfg.Firebase.PrivateKey)
	assert.True(t, cfg.Firebase.Configured())
	assert.Equal(t, 3, cfg.Queue.Attempts)
}
