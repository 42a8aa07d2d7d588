package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string
	AngelClientCode string
	AngelPassword   string
	AngelTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Subscription
	SubscribeTokens string

	// Dynamic Timeframes (comma-separated seconds, e.g. "60,300,900")
	EnabledTFs string

	// Paper Engine / Trading Bot
	PaperTrading            bool
	MaxLossPerDay           int64 // paise
	MaxPositions            int
	RiskPerTrade            float64 // fraction of capital, e.g. 0.01 = 1%
	MaxTradesPerDay         int
	DefaultCapitalPerSymbol int64 // paise
	DefaultProduct          string
	DefaultStrategy         string
	AutoSquareOffHour       int
	AutoSquareOffMinute     int
	StoreDSN                string

	// Trading Bot symbol universe, "EXCHANGE:SYMBOL" pairs, comma-separated.
	TradeSymbols string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		AngelAPIKey:     mustEnv("ANGEL_API_KEY"),
		AngelClientCode: mustEnv("ANGEL_CLIENT_CODE"),
		AngelPassword:   mustEnv("ANGEL_PASSWORD"),
		AngelTOTPSecret: mustEnv("ANGEL_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		// Default: NIFTY 50 on NSE_CM
		SubscribeTokens: getEnv("SUBSCRIBE_TOKENS", "1:99926000"),

		// Default TFs: 1m, 5m, 15m
		EnabledTFs: getEnv("ENABLED_TFS", "60,120,180,300"),

		PaperTrading:            getEnvBool("PAPER_TRADING", true),
		MaxLossPerDay:           getEnvInt64("MAX_LOSS_PER_DAY", 500000),
		MaxPositions:            getEnvInt("MAX_POSITIONS", 5),
		RiskPerTrade:            getEnvFloat("RISK_PER_TRADE", 0.01),
		MaxTradesPerDay:         getEnvInt("MAX_TRADES_PER_DAY", 20),
		DefaultCapitalPerSymbol: getEnvInt64("DEFAULT_CAPITAL_PER_SYMBOL", 10000000),
		DefaultProduct:          getEnv("DEFAULT_PRODUCT", "INTRADAY"),
		DefaultStrategy:         getEnv("DEFAULT_STRATEGY", "ema_rsi"),
		AutoSquareOffHour:       getEnvInt("AUTO_SQUARE_OFF_HOUR", 15),
		AutoSquareOffMinute:     getEnvInt("AUTO_SQUARE_OFF_MINUTE", 15),
		StoreDSN:                getEnv("STORE_DSN", "data/paper.db"),

		TradeSymbols: getEnv("TRADE_SYMBOLS", "NSE:RELIANCE,NSE:TCS"),
	}
}

// ParseTradeSymbols parses TradeSymbols into (exchange, symbol) pairs.
func (c *Config) ParseTradeSymbols() [][2]string {
	parts := strings.Split(c.TradeSymbols, ",")
	out := make([][2]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, ":", 2)
		if len(kv) != 2 {
			log.Printf("[config] skipping malformed trade symbol: %q", p)
			continue
		}
		out = append(out, [2]string{kv[0], kv[1]})
	}
	return out
}

// ParseTFs parses the EnabledTFs string into a sorted slice of timeframe durations in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using default", key, v)
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using default", key, v)
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid int64 for %s: %q, using default", key, v)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using default", key, v)
		return fallback
	}
	return f
}
