package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

type Config struct {
	Port          string
	AllowedOrigin string
	AppEnv        string

	DatabaseURL   string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret            string
	AccessTokenTTLMinutes int
	JWTIssuer             string
	JWTAudience           string

	// Seed accounts are created only when the user store is empty.
	SeedUsers           bool
	SeedAdminPassword   string
	SeedManagerPassword string
	SeedCashierPassword string

	DefaultTaxRate decimal.Decimal
	RecentSalesMax int

	LogLevel    string
	LogEncoding string
	LogFile     string
}

func Load() Config {
	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		AppEnv:                strings.ToLower(getEnv("APP_ENV", "development")),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		BoltPath:              os.Getenv("BOLT_PATH"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 120, 1),
		JWTIssuer:             getEnv("JWT_ISSUER", "Pos.Api"),
		JWTAudience:           getEnv("JWT_AUDIENCE", "Pos.Client"),
		SeedUsers:             getBool("SEED_USERS", true),
		SeedAdminPassword:     os.Getenv("SEED_ADMIN_PASSWORD"),
		SeedManagerPassword:   os.Getenv("SEED_MANAGER_PASSWORD"),
		SeedCashierPassword:   os.Getenv("SEED_CASHIER_PASSWORD"),
		DefaultTaxRate:        getDecimal("DEFAULT_TAX_RATE", decimal.RequireFromString("0.05")),
		RecentSalesMax:        getInt("RECENT_SALES_MAX", 100, 1),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogEncoding:           os.Getenv("LOG_ENCODING"),
		LogFile:               os.Getenv("LOG_FILE"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed, or below min.
func getInt(key string, fallback int, min int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := cast.ToIntE(raw)
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := cast.ToBoolE(raw)
	if err != nil {
		return fallback
	}
	return val
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := decimal.NewFromString(raw)
	if err != nil || val.IsNegative() {
		return fallback
	}
	return val
}
