package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TAX_RATE_CACHE_SECONDS", "")
	t.Setenv("CHECKOUT_LOCK_SECONDS", "")
	t.Setenv("KAFKA_TOPIC_ORDER_EVENTS", "")
	t.Setenv("OUTBOX_POLL_MILLIS", "")
	t.Setenv("OUTBOX_BATCH_SIZE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "order-events", cfg.Kafka.TopicOrderEvents)
	assert.Equal(t, 60*time.Second, cfg.Business.TaxRateCacheTTL)
	assert.Equal(t, 15*time.Second, cfg.Business.CheckoutLockTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Kafka.OutboxInterval)
	assert.Equal(t, 100, cfg.Kafka.OutboxBatchSize)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECKOUT_LOCK_SECONDS", "5")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Business.CheckoutLockTTL)
	assert.False(t, cfg.Database.AutoMigrate)
}
