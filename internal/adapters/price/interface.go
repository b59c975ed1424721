package price

import (
	"context"
	"errors"
)

// ErrPriceUnavailable is returned when no oracle has a usable price for a
// token. Callers that can skip the token should; callers that need the price
// now retry.
var ErrPriceUnavailable = errors.New("price unavailable")

// ErrNoRoute is returned when no swap route exists for a token pair
var ErrNoRoute = errors.New("no swap route")

// Quote represents a swap quote for a token pair
type Quote struct {
	InputMint      string  `json:"input_mint"`
	OutputMint     string  `json:"output_mint"`
	InAmount       float64 `json:"in_amount"`
	OutAmount      float64 `json:"out_amount"`
	PriceImpactPct float64 `json:"price_impact_pct"`
	SlippageBps    int     `json:"slippage_bps"`
}

// Gateway abstracts price oracles, swap quotes and transfer execution
type Gateway interface {
	// GetPrice returns the spot USD price for a token mint
	GetPrice(ctx context.Context, mint string) (float64, error)
	// GetQuote returns a swap quote between two mints for a UI amount
	GetQuote(ctx context.Context, inputMint, outputMint string, amount float64, slippageBps int) (*Quote, error)
	// SubmitTransfer submits a transfer and returns the transaction signature
	SubmitTransfer(ctx context.Context, wallet, mint string, amount float64) (string, error)
}
