package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	AppPort    string
	AppEnv     string
	Timezone   string

	SecretKey         string
	InternalSecretKey string
	CORSOrigins       []string

	RedisAddr   string
	KafkaBroker string
	KafkaTopic  string

	SlotCapacity    int
	SlotLockTimeout time.Duration

	CouponRuleCron string
	CouponRules    CouponRules
}

// CouponRules holds the tier thresholds and reward values used by the
// monthly coupon rule engine.
type CouponRules struct {
	FlatThreshold    decimal.Decimal
	FlatValue        decimal.Decimal
	PercentThreshold decimal.Decimal
	PercentValue     decimal.Decimal
	BOGOMinOrders    int
	MinOrderAmount   decimal.Decimal
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     os.Getenv("APP_ENV"),
		Timezone:   getEnv("TIMEZONE", "Local"),

		SecretKey:         os.Getenv("SECRET_KEY"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		CORSOrigins:       getList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBroker: os.Getenv("KAFKA_BROKER"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "restaurant-events"),

		SlotCapacity:    getInt("SLOT_CAPACITY", 10),
		SlotLockTimeout: getDuration("SLOT_LOCK_TIMEOUT", 3*time.Second),

		CouponRuleCron: getEnv("COUPON_RULE_CRON", "0 2 * * *"),
		CouponRules: CouponRules{
			FlatThreshold:    getDecimal("COUPON_FLAT_THRESHOLD", decimal.NewFromInt(20000)),
			FlatValue:        getDecimal("COUPON_FLAT_VALUE", decimal.NewFromInt(100)),
			PercentThreshold: getDecimal("COUPON_PERCENT_THRESHOLD", decimal.NewFromInt(30000)),
			PercentValue:     getDecimal("COUPON_PERCENT_VALUE", decimal.NewFromInt(10)),
			BOGOMinOrders:    getInt("COUPON_BOGO_MIN_ORDERS", 6),
			MinOrderAmount:   getDecimal("COUPON_MIN_ORDER_AMOUNT", decimal.NewFromInt(100)),
		},
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

// Location resolves the configured timezone, falling back to the process
// local zone when the name is unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown TIMEZONE %q, using local time", c.Timezone)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
