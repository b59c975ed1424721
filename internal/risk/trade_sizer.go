package risk

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// ErrNoStableBalance signals there is nothing to size a trade from. The
// caller skips signal execution for the pass instead of emitting a $0 trade.
var ErrNoStableBalance = errors.New("stable balance is zero")

// TradeSizer computes bounded trade values from available stable balance and
// sentiment conviction
type TradeSizer struct {
	trading *config.TradingConfig
	alloc   *config.AllocationConfig
}

// NewTradeSizer creates new trade sizer
func NewTradeSizer(trading *config.TradingConfig, alloc *config.AllocationConfig) *TradeSizer {
	return &TradeSizer{
		trading: trading,
		alloc:   alloc,
	}
}

// TradeValue sizes one trade: a fixed fraction of the stable balance, scaled
// by sentiment conviction, clamped to the configured floor and cap. A zero
// balance is an explicit error, never a silent zero-value trade.
func (ts *TradeSizer) TradeValue(stableBalance float64, sentiment models.SentimentClass) (float64, error) {
	if stableBalance <= 0 {
		return 0, ErrNoStableBalance
	}

	conviction := ts.alloc.ConvictionFor(sentiment)
	value := stableBalance * ts.trading.BalanceFraction * conviction

	if value < ts.trading.MinTradeValue {
		value = ts.trading.MinTradeValue
	}
	if value > ts.trading.MaxTradeValue {
		value = ts.trading.MaxTradeValue
	}

	logger.Debug("trade sized",
		zap.Float64("stable_balance", stableBalance),
		zap.String("sentiment", string(sentiment)),
		zap.Float64("conviction", conviction),
		zap.Float64("trade_value", value),
	)

	return value, nil
}

// CheckLiquidity enforces the liquidity gate: the candidate token must carry
// at least the configured multiple of the intended trade value
func (ts *TradeSizer) CheckLiquidity(token *models.Token, tradeValue float64) error {
	required := tradeValue * ts.trading.LiquidityMultiple
	if token.Liquidity < required {
		return fmt.Errorf("insufficient liquidity for %s: have $%.2f, need $%.2f",
			token.Symbol, token.Liquidity, required)
	}
	return nil
}
