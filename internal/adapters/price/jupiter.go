package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/time/rate"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
)

const defaultDecimals = 9

// JupiterGateway implements Gateway against the Jupiter price/quote APIs and
// a transfer execution sidecar. All requests share one rate limiter so the
// engine respects third-party limits regardless of caller concurrency.
type JupiterGateway struct {
	cfg      *config.GatewayConfig
	client   *http.Client
	limiter  *rate.Limiter
	decimals map[string]int

	cacheMu sync.Mutex
	cache   map[string]cachedPrice
}

type cachedPrice struct {
	timestamp time.Time
	price     float64
}

// NewJupiterGateway creates new gateway
func NewJupiterGateway(cfg *config.GatewayConfig) *JupiterGateway {
	return &JupiterGateway{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		decimals: make(map[string]int),
		cache:    make(map[string]cachedPrice),
	}
}

// SetDecimals registers token decimals for raw-amount conversion
func (g *JupiterGateway) SetDecimals(mint string, decimals int) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	g.decimals[mint] = decimals
}

func (g *JupiterGateway) decimalsFor(mint string) int {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	if d, ok := g.decimals[mint]; ok {
		return d
	}
	return defaultDecimals
}

// GetPrice returns current USD price for a mint (cached for one minute)
func (g *JupiterGateway) GetPrice(ctx context.Context, mint string) (float64, error) {
	if err := validateMint(mint); err != nil {
		return 0, err
	}

	g.cacheMu.Lock()
	if cached, ok := g.cache[mint]; ok && time.Since(cached.timestamp) < time.Minute {
		g.cacheMu.Unlock()
		return cached.price, nil
	}
	g.cacheMu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s?ids=%s", g.cfg.PriceURL, url.QueryEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create price request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("price API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data map[string]struct {
			Price string `json:"price"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	entry, ok := result.Data[mint]
	if !ok || entry.Price == "" {
		return 0, fmt.Errorf("mint %s: %w", mint, ErrPriceUnavailable)
	}

	value, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("mint %s returned unusable price %q: %w", mint, entry.Price, ErrPriceUnavailable)
	}

	g.cacheMu.Lock()
	g.cache[mint] = cachedPrice{price: value, timestamp: time.Now()}
	g.cacheMu.Unlock()

	return value, nil
}

// GetQuote returns a swap quote. Amount is a UI amount, converted to raw
// units using the registered decimals for the input mint.
func (g *JupiterGateway) GetQuote(ctx context.Context, inputMint, outputMint string, amount float64, slippageBps int) (*Quote, error) {
	if err := validateMint(inputMint); err != nil {
		return nil, err
	}
	if err := validateMint(outputMint); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("quote amount must be positive, got %f", amount)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	inDecimals := g.decimalsFor(inputMint)
	rawAmount := uint64(amount * math.Pow10(inDecimals))

	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(rawAmount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.QuoteURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("%s -> %s: %w", inputMint, outputMint, ErrNoRoute)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		InAmount       string `json:"inAmount"`
		OutAmount      string `json:"outAmount"`
		PriceImpactPct string `json:"priceImpactPct"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	outDecimals := g.decimalsFor(outputMint)
	inRaw, _ := strconv.ParseFloat(result.InAmount, 64)
	outRaw, _ := strconv.ParseFloat(result.OutAmount, 64)
	impact, _ := strconv.ParseFloat(result.PriceImpactPct, 64)

	if outRaw <= 0 {
		return nil, fmt.Errorf("%s -> %s returned empty quote: %w", inputMint, outputMint, ErrNoRoute)
	}

	return &Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       inRaw / math.Pow10(inDecimals),
		OutAmount:      outRaw / math.Pow10(outDecimals),
		PriceImpactPct: impact,
		SlippageBps:    slippageBps,
	}, nil
}

// validateMint checks the mint is a plausible base58 Solana address
func validateMint(mint string) error {
	if mint == "" {
		return fmt.Errorf("empty mint address")
	}

	raw, err := base58.Decode(mint)
	if err != nil {
		return fmt.Errorf("invalid mint address %q: %w", mint, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("invalid mint address %q: expected 32 bytes, got %d", mint, len(raw))
	}

	return nil
}
