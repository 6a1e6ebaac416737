package payout

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/service"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the instruction body.
const SignatureHeader = "X-Escrow-Signature"

// Instruction is the JSON body POSTed to the payment processor.
type Instruction struct {
	ID        uuid.UUID           `json:"id"`
	BatchID   uint64              `json:"batch_id"`
	Kind      service.PaymentKind `json:"kind"`
	To        model.Principal     `json:"to"`
	AmountWei model.Amount        `json:"amount_wei"`
	IssuedAt  time.Time           `json:"issued_at"`
}

// HTTPGateway forwards payments to an external payment processor. Any
// transport error or non-2xx response fails the transfer; the gateway never
// retries, so the engine's rollback is the only recovery path.
type HTTPGateway struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGateway creates a gateway posting to url, signing with secret.
func NewHTTPGateway(url, secret string, logger *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Transfer implements service.Transferer.
func (g *HTTPGateway) Transfer(ctx context.Context, p service.Payment) error {
	instr := Instruction{
		ID:        uuid.New(),
		BatchID:   p.BatchID,
		Kind:      p.Kind,
		To:        p.To,
		AmountWei: p.Amount,
		IssuedAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("marshal instruction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", instr.ID.String())
	req.Header.Set(SignatureHeader, Sign(body, g.secret))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post instruction: %w", err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("payout rejected",
			zap.Uint64("batch_id", p.BatchID),
			zap.String("kind", string(p.Kind)),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("payment processor returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	g.logger.Info("payout sent",
		zap.Uint64("batch_id", p.BatchID),
		zap.String("kind", string(p.Kind)),
		zap.String("instruction_id", instr.ID.String()),
	)
	return nil
}

// Sign computes the "sha256=<hex>" HMAC signature of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
