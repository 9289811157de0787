package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("PAYMENT_TIMEOUT", "")
	t.Setenv("PAID_ORDER_STATUS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "viva", cfg.Payment.Provider)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.Payment.SessionTTL)
	assert.Equal(t, "preparing", cfg.Payment.PaidOrderStatus)
	assert.Empty(t, cfg.Broker.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "Stripe")
	t.Setenv("PAYMENT_TIMEOUT", "3")
	t.Setenv("PAYMENT_SESSION_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RATE_LIMIT", "not-a-number")

	cfg := Load()

	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Payment.SessionTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.KafkaBrokers)
	assert.Equal(t, 50, cfg.RateLimit)
}

func TestInitDBSqlite(t *testing.T) {
	utils.InitLogger()

	db, err := InitDB(DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	assert.True(t, db.Migrator().HasTable(&models.Order{}))
	assert.True(t, db.Migrator().HasIndex(&models.CartItem{}, "idx_cart_user_food"))
}

func TestInitDBUnknownDriver(t *testing.T) {
	_, err := InitDB(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
