package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Success loading from env", func(t *testing.T) {
		// t.Setenv restores the previous value when the test ends.
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("DB_USER", "testuser")
		t.Setenv("DB_PASSWORD", "testpass")
		t.Setenv("DB_NAME", "testdb")
		t.Setenv("DB_PORT", "5432")
		t.Setenv("APP_PORT", "9090")
		t.Setenv("APP_ENV", "test")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("KAFKA_BROKER", "localhost:9092")
		t.Setenv("SLOT_CAPACITY", "12")
		t.Setenv("SLOT_LOCK_TIMEOUT", "750ms")
		t.Setenv("COUPON_FLAT_THRESHOLD", "15000.50")
		t.Setenv("COUPON_BOGO_MIN_ORDERS", "4")
		t.Setenv("SECRET_KEY", "s3cret")
		t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

		cfg := LoadConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "localhost", cfg.DBHost)
		assert.Equal(t, "testuser", cfg.DBUser)
		assert.Equal(t, "testpass", cfg.DBPassword)
		assert.Equal(t, "testdb", cfg.DBName)
		assert.Equal(t, "5432", cfg.DBPort)
		assert.Equal(t, "9090", cfg.AppPort)
		assert.Equal(t, "test", cfg.AppEnv)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, "localhost:9092", cfg.KafkaBroker)
		assert.Equal(t, 12, cfg.SlotCapacity)
		assert.Equal(t, 750*time.Millisecond, cfg.SlotLockTimeout)
		assert.True(t, decimal.RequireFromString("15000.50").Equal(cfg.CouponRules.FlatThreshold))
		assert.Equal(t, 4, cfg.CouponRules.BOGOMinOrders)
		assert.Equal(t, "s3cret", cfg.SecretKey)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("DB_HOST", "localhost")
		t.Setenv("APP_PORT", "")
		t.Setenv("SLOT_CAPACITY", "not-a-number")
		t.Setenv("SLOT_LOCK_TIMEOUT", "")
		t.Setenv("COUPON_PERCENT_THRESHOLD", "")
		t.Setenv("CORS_ORIGINS", "")

		cfg := LoadConfig()

		assert.Equal(t, "8080", cfg.AppPort)
		assert.Equal(t, "disable", cfg.DBSSLMode)
		assert.Equal(t, 10, cfg.SlotCapacity)
		assert.Equal(t, 3*time.Second, cfg.SlotLockTimeout)
		assert.True(t, decimal.NewFromInt(30000).Equal(cfg.CouponRules.PercentThreshold))
		assert.Equal(t, "0 2 * * *", cfg.CouponRuleCron)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	})
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	assert.Equal(t, "UTC", cfg.Location().String())

	cfg.Timezone = "Nowhere/Invalid"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Timezone = ""
	assert.Equal(t, time.Local, cfg.Location())
}
