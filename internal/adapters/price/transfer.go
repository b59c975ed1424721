package price

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
)

// transferRequest is the payload sent to the wallet executor sidecar, which
// holds the signing key and submits the transaction on-chain.
type transferRequest struct {
	Wallet string  `json:"wallet"`
	Mint   string  `json:"mint"`
	Amount float64 `json:"amount"`
}

type transferResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// SubmitTransfer submits one transfer through the executor and returns the
// transaction signature. Each call submits a fresh transaction; retries are
// the caller's responsibility and always produce a new signature.
func (g *JupiterGateway) SubmitTransfer(ctx context.Context, wallet, mint string, amount float64) (string, error) {
	if err := validateMint(wallet); err != nil {
		return "", fmt.Errorf("invalid wallet: %w", err)
	}
	if err := validateMint(mint); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("transfer amount must be positive, got %f", amount)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(transferRequest{
		Wallet: wallet,
		Mint:   mint,
		Amount: amount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.ExecutorURL+"/transfer", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("executor error %d: %s", resp.StatusCode, string(body))
	}

	var result transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("transfer rejected: %s", result.Error)
	}
	if result.Signature == "" {
		return "", fmt.Errorf("executor returned no signature")
	}

	logger.Info("transfer submitted",
		zap.String("mint", mint),
		zap.Float64("amount", amount),
		zap.String("signature", result.Signature),
	)

	return result.Signature, nil
}
