// Package webhooks pushes ledger events to external HTTP endpoints.
package webhooks

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
	"sync"
	"time"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"go.uber.org/zap"
)

// MaxAttempts is the number of tries per endpoint before giving up.
const MaxAttempts = 3

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher delivers every emitted event to a fixed set of endpoints. It
// satisfies service.Emitter; deliveries run on their own goroutines so Emit
// never blocks the engine.
type Dispatcher struct {
	urls       []string
	secret     string
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	onDelivery func(Delivery)
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher that signs bodies with secret.
func NewDispatcher(urls []string, secret string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		urls:       urls,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// SetDeliveryObserver registers fn to receive every attempt's outcome.
func (d *Dispatcher) SetDeliveryObserver(fn func(Delivery)) {
	d.onDelivery = fn
}

// SetBackoff replaces the wait before each attempt. delays[0] applies to
// the first attempt.
func (d *Dispatcher) SetBackoff(delays []time.Duration) {
	d.delays = delays
}

// Emit queues evt for delivery to every endpoint.
func (d *Dispatcher) Emit(ctx context.Context, evt model.Event) {
	if len(d.urls) == 0 {
		return
	}
	env := Envelope{
		ID:        evt.ID,
		Type:      string(evt.Kind),
		Timestamp: time.Now().UTC(),
		Event:     evt,
	}
	body, err := json.Marshal(env)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := signPayload(body, d.secret)

	// Deliveries outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, url := range d.urls {
		d.wg.Add(1)
		go func(url string) {
			defer d.wg.Done()
			d.deliver(ctx, url, env, body, signature)
		}(url)
	}
}

// Wait blocks until every queued delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver sends one event to one endpoint with retries.
func (d *Dispatcher) deliver(ctx context.Context, url string, env Envelope, body []byte, signature string) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt-1 < len(d.delays) && d.delays[attempt-1] > 0 {
			time.Sleep(d.delays[attempt-1])
		}

		success, statusCode, errMsg := d.doDelivery(ctx, url, env, body, signature)

		if d.onDelivery != nil {
			d.onDelivery(Delivery{
				EventID:    env.ID,
				URL:        url,
				StatusCode: statusCode,
				Attempt:    attempt,
				Success:    success,
				Error:      errMsg,
			})
		}
		if d.onMetrics != nil {
			d.onMetrics(success)
		}
		if success {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.String("type", env.Type),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST.
func (d *Dispatcher) doDelivery(ctx context.Context, url string, env Envelope, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(DeliveryHeader, env.ID.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// VerifySignature reports whether signature matches body under secret.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
