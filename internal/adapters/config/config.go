package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// Config represents application configuration
type Config struct {
	Engine     EngineConfig     `envconfig:"ENGINE"`
	Trading    TradingConfig    `envconfig:"TRADING"`
	Allocation AllocationConfig `envconfig:"ALLOCATION"`
	Gateway    GatewayConfig    `envconfig:"GATEWAY"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// EngineConfig represents cycle cadence and pass parameters
type EngineConfig struct {
	CycleInterval     time.Duration `envconfig:"ENGINE_CYCLE_INTERVAL" default:"4h"`
	SnapshotInterval  time.Duration `envconfig:"ENGINE_SNAPSHOT_INTERVAL" default:"1h"`
	RebalanceInterval time.Duration `envconfig:"ENGINE_REBALANCE_INTERVAL" default:"168h"`
	MaxConcurrent     int           `envconfig:"ENGINE_MAX_CONCURRENT" default:"5"`
	HTTPPort          string        `envconfig:"ENGINE_HTTP_PORT" default:"8080"`
}

// TradingConfig represents trade sizing and rebalance thresholds
type TradingConfig struct {
	BalanceFraction      float64 `envconfig:"TRADING_BALANCE_FRACTION" default:"0.10"`
	MinTradeValue        float64 `envconfig:"TRADING_MIN_TRADE_VALUE" default:"10.0"`
	MaxTradeValue        float64 `envconfig:"TRADING_MAX_TRADE_VALUE" default:"1000.0"`
	LiquidityMultiple    float64 `envconfig:"TRADING_LIQUIDITY_MULTIPLE" default:"3.0"`
	CategoryDriftPoints  float64 `envconfig:"TRADING_CATEGORY_DRIFT_POINTS" default:"5.0"`
	TokenDriftPct        float64 `envconfig:"TRADING_TOKEN_DRIFT_PCT" default:"3.0"`
	EntryTolerancePct    float64 `envconfig:"TRADING_ENTRY_TOLERANCE_PCT" default:"1.0"`
}

// AllocationConfig is the single source of truth for sentiment-driven
// category targets and conviction scaling. Validated at startup.
type AllocationConfig struct {
	BullishAITokens float64 `envconfig:"ALLOCATION_BULLISH_AI_TOKENS" default:"70"`
	BullishSol      float64 `envconfig:"ALLOCATION_BULLISH_SOL" default:"20"`
	BullishStables  float64 `envconfig:"ALLOCATION_BULLISH_STABLES" default:"10"`

	NeutralAITokens float64 `envconfig:"ALLOCATION_NEUTRAL_AI_TOKENS" default:"50"`
	NeutralSol      float64 `envconfig:"ALLOCATION_NEUTRAL_SOL" default:"30"`
	NeutralStables  float64 `envconfig:"ALLOCATION_NEUTRAL_STABLES" default:"20"`

	BearishAITokens float64 `envconfig:"ALLOCATION_BEARISH_AI_TOKENS" default:"40"`
	BearishSol      float64 `envconfig:"ALLOCATION_BEARISH_SOL" default:"20"`
	BearishStables  float64 `envconfig:"ALLOCATION_BEARISH_STABLES" default:"40"`

	BullishConviction float64 `envconfig:"ALLOCATION_BULLISH_CONVICTION" default:"0.70"`
	NeutralConviction float64 `envconfig:"ALLOCATION_NEUTRAL_CONVICTION" default:"0.50"`
	BearishConviction float64 `envconfig:"ALLOCATION_BEARISH_CONVICTION" default:"0.30"`
}

// TargetsFor returns category targets for a sentiment classification
func (a *AllocationConfig) TargetsFor(class models.SentimentClass) models.CategoryTargets {
	switch class {
	case models.SentimentBullish:
		return models.CategoryTargets{AITokens: a.BullishAITokens, Sol: a.BullishSol, Stables: a.BullishStables}
	case models.SentimentBearish:
		return models.CategoryTargets{AITokens: a.BearishAITokens, Sol: a.BearishSol, Stables: a.BearishStables}
	default:
		return models.CategoryTargets{AITokens: a.NeutralAITokens, Sol: a.NeutralSol, Stables: a.NeutralStables}
	}
}

// ConvictionFor returns the sizing scale for a sentiment classification
func (a *AllocationConfig) ConvictionFor(class models.SentimentClass) float64 {
	switch class {
	case models.SentimentBullish:
		return a.BullishConviction
	case models.SentimentBearish:
		return a.BearishConviction
	default:
		return a.NeutralConviction
	}
}

// GatewayConfig represents price/quote gateway parameters
type GatewayConfig struct {
	PriceURL          string        `envconfig:"GATEWAY_PRICE_URL" default:"https://api.jup.ag/price/v2"`
	QuoteURL          string        `envconfig:"GATEWAY_QUOTE_URL" default:"https://api.jup.ag/swap/v1/quote"`
	ExecutorURL       string        `envconfig:"GATEWAY_EXECUTOR_URL" default:"http://localhost:8899"`
	WalletAddress     string        `envconfig:"GATEWAY_WALLET_ADDRESS" required:"true"`
	SlippageBps       int           `envconfig:"GATEWAY_SLIPPAGE_BPS" default:"50"`
	RequestsPerSecond float64       `envconfig:"GATEWAY_REQUESTS_PER_SECOND" default:"5"`
	RequestTimeout    time.Duration `envconfig:"GATEWAY_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries        int           `envconfig:"GATEWAY_MAX_RETRIES" default:"3"`
}

// TelegramConfig represents Telegram notification configuration
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	Enabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"true"`
}

// DatabaseConfig represents database connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"aifund"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig represents redis connection for the cycle lock
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
}

// ClickHouseConfig represents telemetry sink connection
type ClickHouseConfig struct {
	DSN     string `envconfig:"CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/aifund"`
	Enabled bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	for _, class := range []models.SentimentClass{
		models.SentimentBullish,
		models.SentimentNeutral,
		models.SentimentBearish,
	} {
		targets := c.Allocation.TargetsFor(class)
		if targets.Sum() != 100 {
			return fmt.Errorf("allocation targets for %s must sum to 100, got %.1f", class, targets.Sum())
		}
		if targets.AITokens < 0 || targets.Sol < 0 || targets.Stables < 0 {
			return fmt.Errorf("allocation targets for %s must be non-negative", class)
		}
		conviction := c.Allocation.ConvictionFor(class)
		if conviction <= 0 || conviction > 1 {
			return fmt.Errorf("conviction for %s must be in (0, 1], got %.2f", class, conviction)
		}
	}

	if c.Trading.BalanceFraction <= 0 || c.Trading.BalanceFraction > 1 {
		return fmt.Errorf("balance_fraction must be in (0, 1]")
	}
	if c.Trading.MinTradeValue <= 0 {
		return fmt.Errorf("min_trade_value must be positive")
	}
	if c.Trading.MaxTradeValue < c.Trading.MinTradeValue {
		return fmt.Errorf("max_trade_value must be >= min_trade_value")
	}
	if c.Trading.LiquidityMultiple < 1 {
		return fmt.Errorf("liquidity_multiple must be at least 1")
	}
	if c.Trading.CategoryDriftPoints <= 0 || c.Trading.TokenDriftPct <= 0 {
		return fmt.Errorf("drift thresholds must be positive")
	}
	if c.Trading.EntryTolerancePct <= 0 {
		return fmt.Errorf("entry_tolerance_pct must be positive")
	}

	if c.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if c.Engine.CycleInterval <= 0 {
		return fmt.Errorf("cycle_interval must be positive")
	}

	if c.Gateway.SlippageBps < 0 || c.Gateway.SlippageBps > 10000 {
		return fmt.Errorf("slippage_bps must be between 0 and 10000")
	}
	if c.Gateway.MaxRetries < 1 {
		return fmt.Errorf("gateway max_retries must be at least 1")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when a bot token is set")
	}

	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
