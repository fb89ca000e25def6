package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution service.
type Config struct {
	Port string

	// OANDA
	OandaAccountID   string
	OandaAPIKey      string
	OandaEnvironment string // "practice" or "live"

	// Webhook
	WebhookSecret     string
	WebhookAllowedIPs []string

	// Dashboard auth
	DashboardPassword string
	JWTSecret         string

	// Risk limits
	RiskPerTrade        float64
	MaxOpenPositions    int
	MaxTotalRisk        float64
	DailyLossLimit      float64
	WeeklyLossLimit     float64
	AutoDisableOnBreach bool

	// Stop/target defaults applied when a signal carries no absolute prices.
	DefaultStopPips   float64
	DefaultTargetPips float64

	// Ledger persistence. Empty path keeps the ledger in memory only.
	LedgerDBPath string

	// Optional YAML overlay with per-instrument trade gates.
	InstrumentsPath string

	// Audit
	MaxExecutionHistory int

	// API rate limiting (per client IP).
	APIRateLimit float64
	APIRateBurst int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		OandaAccountID:      os.Getenv("OANDA_ACCOUNT_ID"),
		OandaAPIKey:         os.Getenv("OANDA_API_KEY"),
		OandaEnvironment:    strings.ToLower(getEnv("OANDA_ENVIRONMENT", "practice")),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		WebhookAllowedIPs:   splitAndTrim(getEnv("WEBHOOK_ALLOWED_IPS", "")),
		DashboardPassword:   os.Getenv("DASHBOARD_PASSWORD"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		RiskPerTrade:        getEnvFloat("RISK_PER_TRADE", 0.02),
		MaxOpenPositions:    getEnvInt("MAX_OPEN_POSITIONS", 5),
		MaxTotalRisk:        getEnvFloat("MAX_TOTAL_RISK", 0.06),
		DailyLossLimit:      getEnvFloat("DAILY_LOSS_LIMIT", 0.05),
		WeeklyLossLimit:     getEnvFloat("WEEKLY_LOSS_LIMIT", 0.10),
		AutoDisableOnBreach: getEnv("AUTO_DISABLE_ON_BREACH", "true") == "true",
		DefaultStopPips:     getEnvFloat("DEFAULT_STOP_PIPS", 20),
		DefaultTargetPips:   getEnvFloat("DEFAULT_TARGET_PIPS", 40),
		LedgerDBPath:        getEnv("LEDGER_DB_PATH", "./data/ledger.db"),
		InstrumentsPath:     getEnv("INSTRUMENTS_PATH", ""),
		MaxExecutionHistory: getEnvInt("MAX_EXECUTION_HISTORY", 50),
		APIRateLimit:        getEnvFloat("API_RATE_LIMIT", 20),
		APIRateBurst:        getEnvInt("API_RATE_BURST", 50),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
