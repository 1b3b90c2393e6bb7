package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	APIKey          string
	CORSAllowOrigin string
	WebhookURL      string
	AppName         string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// HTTP
	Port int

	// Tax engine
	ReportingFiat     string // default fiat for new accounts
	FeePolicy         string // "separate" or "basis"
	PriceWindowHours  int    // neighbor lookback/lookahead for price queries
	PriceExactMinutes int    // tolerance for an exact price hit

	// Exchange sync
	SyncEnabled         bool
	SyncIntervalMinutes int
	SyncLookbackDays    int
	BybitBaseURL        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		AppName:         envStr("APP_NAME", "BybitTaxExporter"),

		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "bybit_tax"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		Port: envInt("PORT", 3001),

		ReportingFiat:     strings.ToUpper(envStr("REPORTING_FIAT", "EUR")),
		FeePolicy:         envStr("FEE_POLICY", "separate"),
		PriceWindowHours:  envInt("PRICE_WINDOW_HOURS", 12),
		PriceExactMinutes: envInt("PRICE_EXACT_MINUTES", 60),

		SyncEnabled:         envBool("SYNC_ENABLED", true),
		SyncIntervalMinutes: envInt("SYNC_INTERVAL_MINUTES", 360),
		SyncLookbackDays:    envInt("SYNC_LOOKBACK_DAYS", 7),
		BybitBaseURL:        envStr("BYBIT_BASE_URL", "https://api.bybit.com"),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}
	if c.FeePolicy != "separate" && c.FeePolicy != "basis" {
		errs = append(errs, fmt.Sprintf("FEE_POLICY must be 'separate' or 'basis', got %q", c.FeePolicy))
	}
	if c.PriceWindowHours <= 0 {
		errs = append(errs, "PRICE_WINDOW_HOURS must be positive")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set — sync notifications disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Bybit Tax Exporter Configuration ===")
	fmt.Printf("Reporting fiat: %s\n", c.ReportingFiat)
	fmt.Printf("Fee policy: %s\n", c.FeePolicy)
	fmt.Printf("Price window: %dh either side, exact within %dm\n", c.PriceWindowHours, c.PriceExactMinutes)
	fmt.Println("--------------------------------------")
	if c.SyncEnabled {
		fmt.Printf("Exchange sync: every %dm, %d-day lookback\n", c.SyncIntervalMinutes, c.SyncLookbackDays)
	} else {
		fmt.Println("Exchange sync: disabled")
	}
	fmt.Printf("API auth: %s\n", boolLabel(c.APIKey != "", "enabled (Bearer token)", "disabled"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) PriceWindow() time.Duration {
	return time.Duration(c.PriceWindowHours) * time.Hour
}

func (c *Config) PriceExactTolerance() time.Duration {
	return time.Duration(c.PriceExactMinutes) * time.Minute
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
