package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// SentimentClass represents the weekly market-mood label
type SentimentClass string

const (
	SentimentBullish SentimentClass = "BULLISH"
	SentimentBearish SentimentClass = "BEARISH"
	SentimentNeutral SentimentClass = "NEUTRAL"
)

// SignalType represents proposed trade direction
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// SignalTimeframe represents expected holding horizon
type SignalTimeframe string

const (
	TimeframeScalp    SignalTimeframe = "SCALP"
	TimeframeIntraday SignalTimeframe = "INTRADAY"
	TimeframeSwing    SignalTimeframe = "SWING"
	TimeframePosition SignalTimeframe = "POSITION"
)

// SignalConfidence represents signal conviction level
type SignalConfidence string

const (
	ConfidenceLow    SignalConfidence = "LOW"
	ConfidenceMedium SignalConfidence = "MEDIUM"
	ConfidenceHigh   SignalConfidence = "HIGH"
)

// SignalStatus represents lifecycle state
type SignalStatus string

const (
	StatusPending   SignalStatus = "PENDING"
	StatusActive    SignalStatus = "ACTIVE"
	StatusCompleted SignalStatus = "COMPLETED"
	StatusStopped   SignalStatus = "STOPPED"
	StatusExpired   SignalStatus = "EXPIRED"
	StatusCancelled SignalStatus = "CANCELLED"
	StatusFailed    SignalStatus = "FAILED"
)

// IsTerminal reports whether status has no outgoing transitions
func (s SignalStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusExpired, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// TradeAction represents executed trade direction
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// AssetCategory groups holdings for category-level allocation
type AssetCategory string

const (
	CategoryAITokens AssetCategory = "ai_tokens"
	CategorySol      AssetCategory = "sol"
	CategoryStables  AssetCategory = "stables"
)

// CategorizeSymbol maps a token symbol to its allocation category.
// Anything that is not SOL or a stablecoin counts as an AI token.
func CategorizeSymbol(symbol string) AssetCategory {
	switch symbol {
	case "SOL":
		return CategorySol
	case "USDC", "USDT":
		return CategoryStables
	default:
		return CategoryAITokens
	}
}

// Token represents a tracked asset, refreshed by the snapshot worker
type Token struct {
	ID             int64     `json:"id" db:"id"`
	Symbol         string    `json:"symbol" db:"symbol"`
	Mint           string    `json:"mint" db:"mint"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	Price          float64   `json:"price" db:"price"`
	Price7dAvg     float64   `json:"price_7d_avg" db:"price_7d_avg"`
	Liquidity      float64   `json:"liquidity" db:"liquidity"`
	Volume7d       float64   `json:"volume_7d" db:"volume_7d"`
	VolumeGrowth   float64   `json:"volume_growth" db:"volume_growth"`
	PriceChange24h float64   `json:"price_change_24h" db:"price_change_24h"`
	HolderCount    int       `json:"holder_count" db:"holder_count"`
	Decimals       int       `json:"decimals" db:"decimals"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// DailyVolume returns average daily volume over the trailing week
func (t *Token) DailyVolume() float64 {
	return t.Volume7d / 7.0
}

// TokenSnapshot is one day of history used by the sentiment classifier
type TokenSnapshot struct {
	ID         int64     `json:"id" db:"id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Price      float64   `json:"price" db:"price"`
	Price7dAvg float64   `json:"price_7d_avg" db:"price_7d_avg"`
	Volume24h  float64   `json:"volume_24h" db:"volume_24h"`
	Change24h  float64   `json:"change_24h" db:"change_24h"`
	UpDay      bool      `json:"up_day" db:"up_day"`
	SnapshotAt time.Time `json:"snapshot_at" db:"snapshot_at"`
}

// PortfolioHolding is one held asset; usd_value sums define total portfolio value
type PortfolioHolding struct {
	ID         int64           `json:"id" db:"id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Mint       string          `json:"mint" db:"mint"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	USDValue   decimal.Decimal `json:"usd_value" db:"usd_value"`
	LastUpdate time.Time       `json:"last_update" db:"last_update"`
}

// Category returns the allocation category of the holding
func (h *PortfolioHolding) Category() AssetCategory {
	return CategorizeSymbol(h.Symbol)
}

// MarketSentiment is the immutable weekly classification row.
// New weeks append new rows; consumers read the latest by week_end_date.
type MarketSentiment struct {
	ID                int64          `json:"id" db:"id"`
	WeekStartDate     time.Time      `json:"week_start_date" db:"week_start_date"`
	WeekEndDate       time.Time      `json:"week_end_date" db:"week_end_date"`
	Classification    SentimentClass `json:"classification" db:"classification"`
	Confidence        int            `json:"confidence" db:"confidence"`
	PctAboveWeekAvg   float64        `json:"pct_above_week_avg" db:"pct_above_week_avg"`
	VolumeGrowth      float64        `json:"volume_growth" db:"volume_growth"`
	UpDayVolumePct    float64        `json:"up_day_volume_pct" db:"up_day_volume_pct"`
	SolOutperformance float64        `json:"sol_outperformance" db:"sol_outperformance"`
	Notes             string         `json:"notes" db:"notes"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// Signal is a proposed trade awaiting execution
type Signal struct {
	ID          int64            `json:"id" db:"id"`
	Symbol      string           `json:"symbol" db:"symbol"`
	Mint        string           `json:"mint" db:"mint"`
	Type        SignalType       `json:"type" db:"type"`
	Timeframe   SignalTimeframe  `json:"timeframe" db:"timeframe"`
	EntryPrice  decimal.Decimal  `json:"entry_price" db:"entry_price"`
	TargetPrice decimal.Decimal  `json:"target_price" db:"target_price"`
	StopLoss    decimal.Decimal  `json:"stop_loss" db:"stop_loss"`
	Confidence  SignalConfidence `json:"confidence" db:"confidence"`
	Status      SignalStatus     `json:"status" db:"status"`
	ExpiryDate  time.Time        `json:"expiry_date" db:"expiry_date"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// Trade is the append-only execution audit record
type Trade struct {
	ID                   int64           `json:"id" db:"id"`
	SignalID             *int64          `json:"signal_id,omitempty" db:"signal_id"`
	Symbol               string          `json:"symbol" db:"symbol"`
	Mint                 string          `json:"mint" db:"mint"`
	Action               TradeAction     `json:"action" db:"action"`
	Amount               decimal.Decimal `json:"amount" db:"amount"`
	Price                decimal.Decimal `json:"price" db:"price"`
	ExecutionPrice       decimal.Decimal `json:"execution_price" db:"execution_price"`
	TransactionSignature string          `json:"transaction_signature" db:"transaction_signature"`
	Success              bool            `json:"success" db:"success"`
	FailureReason        string          `json:"failure_reason" db:"failure_reason"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	RealizedPnL          decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	ROI                  float64         `json:"roi" db:"roi"`
	Reason               string          `json:"reason" db:"reason"`
	ExecutedAt           time.Time       `json:"executed_at" db:"executed_at"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// TokenScore is the per-pass scoring result. Never persisted; only the
// portfolio and trade effects derived from it are.
type TokenScore struct {
	Symbol            string  `json:"symbol"`
	Mint              string  `json:"mint"`
	BaseScore         float64 `json:"base_score"`
	VolumeScore       float64 `json:"volume_score"`
	PriceScore        float64 `json:"price_score"`
	LiquidityScore    float64 `json:"liquidity_score"`
	FinalScore        float64 `json:"final_score"`
	CurrentAllocation float64 `json:"current_allocation"`
	TargetAllocation  float64 `json:"target_allocation"`
}

// CategoryTargets holds target percentages per allocation category
type CategoryTargets struct {
	AITokens float64 `json:"ai_tokens"`
	Sol      float64 `json:"sol"`
	Stables  float64 `json:"stables"`
}

// For returns the target percentage for a category
func (t CategoryTargets) For(category AssetCategory) float64 {
	switch category {
	case CategorySol:
		return t.Sol
	case CategoryStables:
		return t.Stables
	default:
		return t.AITokens
	}
}

// Sum returns total of all category targets (must be 100)
func (t CategoryTargets) Sum() float64 {
	return t.AITokens + t.Sol + t.Stables
}

// RebalanceOrder is a planned trade closing allocation drift.
// Ephemeral, scoped to one engine pass.
type RebalanceOrder struct {
	Action   TradeAction `json:"action"`
	Symbol   string      `json:"symbol"`
	Mint     string      `json:"mint"`
	Amount   float64     `json:"amount"`
	ValueUSD float64     `json:"value_usd"`
	Price    float64     `json:"price"`
	Reason   string      `json:"reason"`
}

// CycleRecord is one engine-cycle telemetry row
type CycleRecord struct {
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	FinishedAt      time.Time `json:"finished_at" db:"finished_at"`
	Trigger         string    `json:"trigger" db:"trigger"`
	Sentiment       string    `json:"sentiment" db:"sentiment"`
	TokensScored    int       `json:"tokens_scored" db:"tokens_scored"`
	OrdersPlanned   int       `json:"orders_planned" db:"orders_planned"`
	OrdersExecuted  int       `json:"orders_executed" db:"orders_executed"`
	SignalsAdvanced int       `json:"signals_advanced" db:"signals_advanced"`
	TradesAdvanced  int       `json:"trades_advanced" db:"trades_advanced"`
	Err             string    `json:"error" db:"error"`
}
