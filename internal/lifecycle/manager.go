package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/internal/risk"
	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
	"github.com/mkuznetsov/aifund-bot/pkg/retry"
)

// Notifier sends best-effort human-readable events
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// signalStore is the slice of store.SignalRepository the manager needs
type signalStore interface {
	OldestPending(ctx context.Context) (*models.Signal, error)
	OldestActive(ctx context.Context) (*models.Signal, error)
	Transition(ctx context.Context, id int64, from, to models.SignalStatus) error
}

type tradeStore interface {
	Record(ctx context.Context, trade *models.Trade) error
	OpenTradeForSignal(ctx context.Context, signalID int64) (*models.Trade, error)
	UpdateUnrealizedPnL(ctx context.Context, tradeID int64, unrealized decimal.Decimal) error
	Close(ctx context.Context, tradeID int64, realized decimal.Decimal, roi float64) error
}

type portfolioStore interface {
	StableBalance(ctx context.Context) (decimal.Decimal, error)
	ApplyTrade(ctx context.Context, symbol, mint string, action models.TradeAction, amount, price decimal.Decimal) error
}

type tokenStore interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.Token, error)
}

// Manager owns the signal state machine from creation through execution,
// monitoring and closure. Each cycle it advances at most one PENDING signal
// and at most one ACTIVE trade; the throttle bounds the blast radius of a
// bad cycle and removes the need for per-signal locking.
type Manager struct {
	signals   signalStore
	trades    tradeStore
	portfolio portfolioStore
	tokens    tokenStore
	gateway   price.Gateway
	sizer     *risk.TradeSizer
	notifier  Notifier
	trading   *config.TradingConfig
	wallet    string
	retryPol  retry.Policy
}

// NewManager creates new lifecycle manager
func NewManager(
	signals signalStore,
	trades tradeStore,
	portfolio portfolioStore,
	tokens tokenStore,
	gateway price.Gateway,
	sizer *risk.TradeSizer,
	notifier Notifier,
	trading *config.TradingConfig,
	wallet string,
) *Manager {
	return &Manager{
		signals:   signals,
		trades:    trades,
		portfolio: portfolio,
		tokens:    tokens,
		gateway:   gateway,
		sizer:     sizer,
		notifier:  notifier,
		trading:   trading,
		wallet:    wallet,
		retryPol:  retry.DefaultPolicy,
	}
}

// ValidTransition reports whether the state machine allows moving a signal
// from one status to another. Terminal states have no outgoing transitions.
func ValidTransition(from, to models.SignalStatus) bool {
	switch from {
	case models.StatusPending:
		switch to {
		case models.StatusActive, models.StatusExpired, models.StatusCancelled, models.StatusFailed:
			return true
		}
	case models.StatusActive:
		switch to {
		case models.StatusCompleted, models.StatusStopped, models.StatusExpired:
			return true
		}
	}
	return false
}

// EntryHit reports whether a live price sits within the entry tolerance of
// the signal's entry price
func EntryHit(entryPrice, livePrice, tolerancePct float64) bool {
	if entryPrice <= 0 {
		return false
	}
	deviation := (livePrice - entryPrice) / entryPrice * 100
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation <= tolerancePct
}

func (m *Manager) transition(ctx context.Context, signal *models.Signal, to models.SignalStatus) error {
	if !ValidTransition(signal.Status, to) {
		return fmt.Errorf("invalid transition %s -> %s for signal %d", signal.Status, to, signal.ID)
	}
	if err := m.signals.Transition(ctx, signal.ID, signal.Status, to); err != nil {
		return err
	}
	signal.Status = to
	return nil
}

// AdvancePending evaluates the oldest PENDING signal. At most one signal is
// touched per call. Returns true when a signal changed state.
func (m *Manager) AdvancePending(ctx context.Context, sentiment models.SentimentClass) (bool, error) {
	signal, err := m.signals.OldestPending(ctx)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now()
	if now.After(signal.ExpiryDate) {
		if err := m.transition(ctx, signal, models.StatusExpired); err != nil {
			return false, err
		}
		logger.Info("pending signal expired",
			zap.Int64("signal_id", signal.ID),
			zap.String("symbol", signal.Symbol),
		)
		return true, nil
	}

	livePrice, err := m.gateway.GetPrice(ctx, signal.Mint)
	if err != nil {
		// Transient feed problem: leave the signal PENDING, the next cycle
		// re-evaluates it
		logger.Warn("price unavailable for pending signal, skipping this cycle",
			zap.Int64("signal_id", signal.ID),
			zap.String("symbol", signal.Symbol),
			zap.Error(err),
		)
		return false, nil
	}

	entry := models.ToFloat64(signal.EntryPrice)
	if !EntryHit(entry, livePrice, m.trading.EntryTolerancePct) {
		logger.Debug("entry not hit",
			zap.Int64("signal_id", signal.ID),
			zap.String("symbol", signal.Symbol),
			zap.Float64("entry_price", entry),
			zap.Float64("live_price", livePrice),
		)
		return false, nil
	}

	return m.execute(ctx, signal, sentiment, livePrice)
}

// execute activates a PENDING signal: size, gate, submit, record, transition.
// Returns true when the signal changed state.
func (m *Manager) execute(ctx context.Context, signal *models.Signal, sentiment models.SentimentClass, livePrice float64) (bool, error) {
	stableBalance, err := m.portfolio.StableBalance(ctx)
	if err != nil {
		return false, err
	}

	tradeValue, err := m.sizer.TradeValue(models.ToFloat64(stableBalance), sentiment)
	if errors.Is(err, risk.ErrNoStableBalance) {
		logger.Warn("no stable balance, skipping signal execution",
			zap.Int64("signal_id", signal.ID),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	token, err := m.tokens.GetBySymbol(ctx, signal.Symbol)
	if err != nil {
		return false, err
	}
	if err := m.sizer.CheckLiquidity(token, tradeValue); err != nil {
		logger.Warn("liquidity gate failed, skipping signal execution",
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
		return false, nil
	}

	amount := tradeValue / livePrice

	var signature string
	err = retry.Do(ctx, "signal transfer", m.retryPol, func(ctx context.Context) error {
		var submitErr error
		signature, submitErr = m.gateway.SubmitTransfer(ctx, m.wallet, signal.Mint, amount)
		return submitErr
	})

	action := models.ActionBuy
	if signal.Type == models.SignalSell {
		action = models.ActionSell
	}

	trade := &models.Trade{
		SignalID:       &signal.ID,
		Symbol:         signal.Symbol,
		Mint:           signal.Mint,
		Action:         action,
		Amount:         decimal.NewFromFloat(amount),
		Price:          signal.EntryPrice,
		ExecutionPrice: decimal.NewFromFloat(livePrice),
		Reason:         fmt.Sprintf("signal %d entry", signal.ID),
	}

	if err != nil {
		// Execution failure after retries: the record must never stay
		// ambiguous, so mark the signal FAILED and tell a human
		trade.Success = false
		trade.FailureReason = err.Error()
		if recordErr := m.trades.Record(ctx, trade); recordErr != nil {
			logger.Error("failed to record failed signal trade", zap.Error(recordErr))
		}
		if transErr := m.transition(ctx, signal, models.StatusFailed); transErr != nil {
			return false, transErr
		}
		if m.notifier != nil {
			m.notifier.Notify(ctx, fmt.Sprintf(
				"🚨 Signal %d (%s) FAILED: %v", signal.ID, signal.Symbol, err,
			))
		}
		return true, nil
	}

	trade.Success = true
	trade.TransactionSignature = signature

	if persistErr := m.persistActivation(ctx, signal, trade); persistErr != nil {
		return m.quarantine(ctx, signal, signature, persistErr)
	}

	logger.Info("signal activated",
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.Float64("execution_price", livePrice),
		zap.Float64("trade_value", tradeValue),
		zap.String("signature", signature),
	)

	if m.notifier != nil {
		m.notifier.Notify(ctx, fmt.Sprintf(
			"✅ Signal %d %s %s activated at $%.4f ($%.2f)",
			signal.ID, signal.Type, signal.Symbol, livePrice, tradeValue,
		))
	}

	return true, nil
}

// persistActivation records the fill, applies it to holdings and moves the
// signal to ACTIVE. Each step retries independently: once the transfer has
// settled, a transient store failure must not leave the signal behind it
// still PENDING.
func (m *Manager) persistActivation(ctx context.Context, signal *models.Signal, trade *models.Trade) error {
	if err := retry.Do(ctx, "record signal fill", m.retryPol, func(ctx context.Context) error {
		return m.trades.Record(ctx, trade)
	}); err != nil {
		return fmt.Errorf("record fill: %w", err)
	}

	if err := retry.Do(ctx, "apply signal fill", m.retryPol, func(ctx context.Context) error {
		return m.portfolio.ApplyTrade(ctx, signal.Symbol, signal.Mint, trade.Action,
			trade.Amount, trade.ExecutionPrice)
	}); err != nil {
		return fmt.Errorf("apply fill: %w", err)
	}

	if err := retry.Do(ctx, "activate signal", m.retryPol, func(ctx context.Context) error {
		return m.signals.Transition(ctx, signal.ID, models.StatusPending, models.StatusActive)
	}); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	signal.Status = models.StatusActive

	return nil
}

// quarantine handles a transfer that settled while the datastore kept
// failing. The signal must not stay PENDING, or the next pass would re-claim
// it and submit a second transfer for an entry that already filled. It is
// forced to FAILED and a human takes over reconciliation.
func (m *Manager) quarantine(ctx context.Context, signal *models.Signal, signature string, cause error) (bool, error) {
	logger.Error("signal executed but bookkeeping failed",
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.String("signature", signature),
		zap.Error(cause),
	)

	if err := retry.Do(ctx, "quarantine signal", m.retryPol, func(ctx context.Context) error {
		return m.signals.Transition(ctx, signal.ID, signal.Status, models.StatusFailed)
	}); err != nil {
		if m.notifier != nil {
			m.notifier.Notify(ctx, fmt.Sprintf(
				"🚨 Signal %d (%s) executed (tx %s) but is stuck in %s: %v — intervene now",
				signal.ID, signal.Symbol, signature, signal.Status, cause,
			))
		}
		return false, fmt.Errorf("signal %d executed but stuck in %s: %w", signal.ID, signal.Status, err)
	}
	signal.Status = models.StatusFailed

	if m.notifier != nil {
		m.notifier.Notify(ctx, fmt.Sprintf(
			"🚨 Signal %d (%s) executed (tx %s) but bookkeeping failed: %v — marked FAILED, reconcile manually",
			signal.ID, signal.Symbol, signature, cause,
		))
	}

	return true, nil
}

// AdvanceActive monitors the oldest ACTIVE signal: recomputes unrealized PnL
// and closes the position when target, stop or expiry is reached. At most one
// trade is touched per call. Returns true when a signal changed state.
func (m *Manager) AdvanceActive(ctx context.Context) (bool, error) {
	signal, err := m.signals.OldestActive(ctx)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	trade, err := m.trades.OpenTradeForSignal(ctx, signal.ID)
	if err != nil {
		return false, err
	}

	livePrice, err := m.gateway.GetPrice(ctx, signal.Mint)
	if err != nil {
		logger.Warn("price unavailable for active signal, skipping this cycle",
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
		return false, nil
	}

	unrealized := UnrealizedPnL(trade, livePrice)
	if err := m.trades.UpdateUnrealizedPnL(ctx, trade.ID, unrealized); err != nil {
		return false, err
	}

	switch {
	case targetReached(signal, livePrice):
		return m.closePosition(ctx, signal, trade, livePrice, models.StatusCompleted)
	case stopReached(signal, livePrice):
		return m.closePosition(ctx, signal, trade, livePrice, models.StatusStopped)
	case time.Now().After(signal.ExpiryDate):
		return m.closePosition(ctx, signal, trade, livePrice, models.StatusExpired)
	}

	logger.Debug("active signal monitored",
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.Float64("live_price", livePrice),
		zap.String("unrealized_pnl", unrealized.StringFixed(2)),
	)

	return false, nil
}

// UnrealizedPnL marks an open trade to the live price
func UnrealizedPnL(trade *models.Trade, livePrice float64) decimal.Decimal {
	live := decimal.NewFromFloat(livePrice)
	diff := live.Sub(trade.ExecutionPrice)
	if trade.Action == models.ActionSell {
		diff = trade.ExecutionPrice.Sub(live)
	}
	return diff.Mul(trade.Amount)
}

func targetReached(signal *models.Signal, livePrice float64) bool {
	target := models.ToFloat64(signal.TargetPrice)
	if signal.Type == models.SignalSell {
		return livePrice <= target
	}
	return livePrice >= target
}

func stopReached(signal *models.Signal, livePrice float64) bool {
	stop := models.ToFloat64(signal.StopLoss)
	if signal.Type == models.SignalSell {
		return livePrice >= stop
	}
	return livePrice <= stop
}

// closePosition unwinds the open trade, finalizes PnL and transitions the
// signal to its terminal state. Returns true when the signal changed state.
func (m *Manager) closePosition(ctx context.Context, signal *models.Signal, trade *models.Trade, livePrice float64, to models.SignalStatus) (bool, error) {
	amount := models.ToFloat64(trade.Amount)

	var signature string
	err := retry.Do(ctx, "close transfer", m.retryPol, func(ctx context.Context) error {
		var submitErr error
		signature, submitErr = m.gateway.SubmitTransfer(ctx, m.wallet, signal.Mint, amount)
		return submitErr
	})
	if err != nil {
		// Position stays ACTIVE and is retried next cycle; the signal must
		// not reach a terminal state while the position is still open
		logger.Error("failed to unwind position, keeping signal active",
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
		if m.notifier != nil {
			m.notifier.Notify(ctx, fmt.Sprintf(
				"🚨 Could not close position for signal %d (%s): %v",
				signal.ID, signal.Symbol, err,
			))
		}
		return false, nil
	}

	closeAction := models.ActionSell
	if trade.Action == models.ActionSell {
		closeAction = models.ActionBuy
	}

	realized := UnrealizedPnL(trade, livePrice)
	roi := 0.0
	if cost := trade.ExecutionPrice.Mul(trade.Amount); !cost.IsZero() {
		roi, _ = realized.Div(cost).Mul(decimal.NewFromInt(100)).Float64()
	}

	closing := &models.Trade{
		SignalID:             &signal.ID,
		Symbol:               signal.Symbol,
		Mint:                 signal.Mint,
		Action:               closeAction,
		Amount:               trade.Amount,
		Price:                decimal.NewFromFloat(livePrice),
		ExecutionPrice:       decimal.NewFromFloat(livePrice),
		TransactionSignature: signature,
		Success:              true,
		RealizedPnL:          realized,
		ROI:                  roi,
		Reason:               fmt.Sprintf("signal %d close: %s", signal.ID, to),
	}
	if persistErr := m.persistClose(ctx, signal, trade, closing, realized, roi, to); persistErr != nil {
		return m.finalizeUnrecordedClose(ctx, signal, signature, to, persistErr)
	}

	logger.Info("position closed",
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.String("outcome", string(to)),
		zap.String("realized_pnl", realized.StringFixed(2)),
		zap.Float64("roi", roi),
	)

	if m.notifier != nil {
		m.notifier.Notify(ctx, fmt.Sprintf(
			"%s Signal %d %s closed: %s, PnL $%s (%.1f%%)",
			outcomeEmoji(to), signal.ID, signal.Symbol, to, realized.StringFixed(2), roi,
		))
	}

	return true, nil
}

// persistClose records the closing fill, applies it to holdings, finalizes
// the open trade and moves the signal to its terminal state. Each step
// retries independently so a transient store failure cannot strand a signal
// in ACTIVE after its position was already unwound.
func (m *Manager) persistClose(ctx context.Context, signal *models.Signal, trade, closing *models.Trade, realized decimal.Decimal, roi float64, to models.SignalStatus) error {
	if err := retry.Do(ctx, "record closing fill", m.retryPol, func(ctx context.Context) error {
		return m.trades.Record(ctx, closing)
	}); err != nil {
		return fmt.Errorf("record closing fill: %w", err)
	}

	if err := retry.Do(ctx, "apply closing fill", m.retryPol, func(ctx context.Context) error {
		return m.portfolio.ApplyTrade(ctx, signal.Symbol, signal.Mint, closing.Action,
			trade.Amount, closing.ExecutionPrice)
	}); err != nil {
		return fmt.Errorf("apply closing fill: %w", err)
	}

	if err := retry.Do(ctx, "finalize open trade", m.retryPol, func(ctx context.Context) error {
		return m.trades.Close(ctx, trade.ID, realized, roi)
	}); err != nil {
		return fmt.Errorf("finalize open trade: %w", err)
	}

	if err := retry.Do(ctx, "terminate signal", m.retryPol, func(ctx context.Context) error {
		return m.signals.Transition(ctx, signal.ID, models.StatusActive, to)
	}); err != nil {
		return fmt.Errorf("terminate: %w", err)
	}
	signal.Status = to

	return nil
}

// finalizeUnrecordedClose handles an unwind transfer that settled while the
// datastore kept failing. The signal is forced to its terminal state anyway:
// leaving it ACTIVE would make the next pass unwind the same position a
// second time. The bookkeeping gap goes to a human.
func (m *Manager) finalizeUnrecordedClose(ctx context.Context, signal *models.Signal, signature string, to models.SignalStatus, cause error) (bool, error) {
	logger.Error("position unwound but bookkeeping failed",
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", signal.Symbol),
		zap.String("signature", signature),
		zap.Error(cause),
	)

	if err := retry.Do(ctx, "force terminal state", m.retryPol, func(ctx context.Context) error {
		return m.signals.Transition(ctx, signal.ID, models.StatusActive, to)
	}); err != nil {
		if m.notifier != nil {
			m.notifier.Notify(ctx, fmt.Sprintf(
				"🚨 Signal %d (%s) position unwound (tx %s) but signal is stuck ACTIVE: %v — intervene now",
				signal.ID, signal.Symbol, signature, cause,
			))
		}
		return false, fmt.Errorf("signal %d unwound but stuck ACTIVE: %w", signal.ID, err)
	}
	signal.Status = to

	if m.notifier != nil {
		m.notifier.Notify(ctx, fmt.Sprintf(
			"🚨 Signal %d (%s) closed (tx %s) but bookkeeping failed: %v — marked %s, reconcile manually",
			signal.ID, signal.Symbol, signature, cause, to,
		))
	}

	return true, nil
}

// Cancel moves a PENDING signal to CANCELLED before any execution happens
func (m *Manager) Cancel(ctx context.Context, signalID int64) error {
	if err := m.signals.Transition(ctx, signalID, models.StatusPending, models.StatusCancelled); err != nil {
		return err
	}

	logger.Info("signal cancelled",
		zap.Int64("signal_id", signalID),
	)

	return nil
}

func outcomeEmoji(status models.SignalStatus) string {
	switch status {
	case models.StatusCompleted:
		return "🎯"
	case models.StatusStopped:
		return "🛑"
	default:
		return "⌛"
	}
}
