package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Trading page
	TradingURL       string
	TradingPageMatch string
	Instrument       string

	// Browser
	CDPURL      string // attach to an already logged-in browser
	UserDataDir string
	Headless    bool

	// Selector data
	SelectorsPath string

	// Risk policy
	MaxPositions       int
	StopLossPnL        decimal.Decimal // close when pnl <= this
	TrailMinProfit     decimal.Decimal // peak must reach this before trailing applies
	TrailBuffer        decimal.Decimal
	TrailBufferHighVol decimal.Decimal
	HighVolatility     bool

	// Interaction timing
	ClickSettle     time.Duration
	ClickRetryLimit int
	ChipSettle      time.Duration
	SubmitSettle    time.Duration
	ConfirmSettle   time.Duration
	PageSettle      time.Duration

	// Poll cadence
	PollActive time.Duration
	PollIdle   time.Duration

	// Fallbacks
	UseAPIFallback  bool
	APITradePath    string
	DebugNetworkSpy bool

	// Signals
	SignalSource     string // ws, redis or none
	SignalWSURL      string
	SignalSymbol     string
	RedisURL         string
	RedisChannel     string
	SignalWager      decimal.Decimal
	SignalMultiplier decimal.Decimal
	BreakerFailures  int
	BreakerCooldown  time.Duration
	AutoHighVolDelta decimal.Decimal
	VolatilityWindow int

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Mode
		DryRun: getEnvBool("DRY_RUN", false),
		Debug:  getEnvBool("DEBUG", false),

		// Trading page
		TradingURL:       getEnv("TRADING_URL", "https://rollbit.com/trading/BTC"),
		TradingPageMatch: getEnv("TRADING_PAGE_MATCH", "trading/BTC"),
		Instrument:       getEnv("INSTRUMENT", "BTC"),

		// Browser
		CDPURL:      os.Getenv("CDP_URL"),
		UserDataDir: getEnv("CHROME_USER_DATA_DIR", "data/chrome-profile"),
		Headless:    getEnvBool("HEADLESS", false),

		SelectorsPath: getEnv("SELECTORS_PATH", "selectors.yaml"),

		// Risk policy
		MaxPositions:       getEnvInt("MAX_POSITIONS", 4),
		StopLossPnL:        getEnvDecimal("STOP_LOSS_PNL", decimal.NewFromFloat(-0.01)),
		TrailMinProfit:     getEnvDecimal("TRAIL_MIN_PROFIT", decimal.NewFromFloat(0.01)),
		TrailBuffer:        getEnvDecimal("TRAIL_BUFFER", decimal.NewFromFloat(0.02)),
		TrailBufferHighVol: getEnvDecimal("TRAIL_BUFFER_HIGH_VOL", decimal.NewFromFloat(0.03)),
		HighVolatility:     getEnvBool("HIGH_VOLATILITY", false),

		// Interaction timing
		ClickSettle:     getEnvDuration("CLICK_SETTLE", time.Second),
		ClickRetryLimit: getEnvInt("CLICK_RETRY_LIMIT", 2),
		ChipSettle:      getEnvDuration("CHIP_SETTLE", 300*time.Millisecond),
		SubmitSettle:    getEnvDuration("SUBMIT_SETTLE", 1500*time.Millisecond),
		ConfirmSettle:   getEnvDuration("CONFIRM_SETTLE", time.Second),
		PageSettle:      getEnvDuration("PAGE_SETTLE", 2*time.Second),

		// Poll cadence
		PollActive: getEnvDuration("POLL_ACTIVE", time.Second),
		PollIdle:   getEnvDuration("POLL_IDLE", 5*time.Second),

		// Fallbacks
		UseAPIFallback:  getEnvBool("USE_API_FALLBACK", true),
		APITradePath:    getEnv("API_TRADE_PATH", "/private/trade"),
		DebugNetworkSpy: getEnvBool("DEBUG_NETWORK_SPY", false),

		// Signals
		SignalSource:     strings.ToLower(getEnv("SIGNAL_SOURCE", "ws")),
		SignalWSURL:      getEnv("SIGNAL_WS_URL", "wss://matrix.cryptoiq.com/api/sentinel/ws"),
		SignalSymbol:     strings.ToUpper(getEnv("SIGNAL_SYMBOL", "BTCUSDT")),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisChannel:     getEnv("REDIS_CHANNEL", "burstbot:signals"),
		SignalWager:      getEnvDecimal("SIGNAL_WAGER", decimal.NewFromInt(1)),
		SignalMultiplier: getEnvDecimal("SIGNAL_MULTIPLIER", decimal.NewFromInt(1000)),
		BreakerFailures:  getEnvInt("BREAKER_FAILURES", 3),
		BreakerCooldown:  getEnvDuration("BREAKER_COOLDOWN", 5*time.Minute),
		AutoHighVolDelta: getEnvDecimal("AUTO_HIGH_VOL_DELTA", decimal.Zero),
		VolatilityWindow: getEnvInt("VOLATILITY_WINDOW", 20),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/burstbot.db"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the policy constants for obviously broken values
func (c *Config) Validate() error {
	if c.MaxPositions <= 0 {
		return fmt.Errorf("MAX_POSITIONS must be positive, got %d", c.MaxPositions)
	}
	if c.ClickRetryLimit < 0 {
		return fmt.Errorf("CLICK_RETRY_LIMIT must not be negative, got %d", c.ClickRetryLimit)
	}
	if c.StopLossPnL.IsPositive() {
		return fmt.Errorf("STOP_LOSS_PNL must be zero or negative, got %s", c.StopLossPnL)
	}
	if c.TrailBuffer.IsNegative() || c.TrailBufferHighVol.IsNegative() {
		return fmt.Errorf("trailing buffers must not be negative")
	}
	switch c.SignalSource {
	case "ws", "redis", "none":
	default:
		return fmt.Errorf("SIGNAL_SOURCE must be ws, redis or none, got %q", c.SignalSource)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
