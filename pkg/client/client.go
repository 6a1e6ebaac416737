package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseSize bounds any single response body, content blobs included.
const maxResponseSize = 8 << 20

// APIError is returned for any non-2xx response from the ledger.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ledger error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ledger error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ProvenanceEntry is one append-only provenance note on a batch.
type ProvenanceEntry struct {
	CID     string    `json:"cid"`
	Author  string    `json:"author"`
	AddedAt time.Time `json:"added_at"`
}

// Batch is the ledger's view of a produce batch. Amounts are decimal wei
// strings and principals are hex addresses.
type Batch struct {
	ID              uint64            `json:"id"`
	Farmer          string            `json:"farmer"`
	MetadataCID     string            `json:"metadata_cid"`
	QualityScore    uint8             `json:"quality_score"`
	DataVerified    bool              `json:"data_verified"`
	PriceWei        string            `json:"price_wei"`
	Buyer           string            `json:"buyer,omitempty"`
	EscrowAmountWei string            `json:"escrow_amount_wei"`
	State           string            `json:"state"`
	CreatedAt       time.Time         `json:"created_at"`
	Provenance      []ProvenanceEntry `json:"provenance"`
}

// AuditOverview is the summary returned by GET /api/v1/audit.
type AuditOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// AuditVerifyResult reports the outcome of a full chain walk.
type AuditVerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Client is the ledger SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client must not be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a caller token to every request. Mutating calls
// fail with 401 without one.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the ledger at base.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(token),
//	)
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid ledger URL %q: %w", base, err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// CreateBatch registers a new batch owned by the caller and returns its id.
func (c *Client) CreateBatch(ctx context.Context, metadataCID, priceWei string) (uint64, error) {
	var resp struct {
		ID uint64 `json:"id"`
	}
	err := c.call(ctx, http.MethodPost, "/api/v1/batches",
		map[string]string{"metadata_cid": metadataCID, "price_wei": priceWei}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ListBatch offers the batch for sale at priceWei.
func (c *Client) ListBatch(ctx context.Context, id uint64, priceWei string) (*Batch, error) {
	return c.mutate(ctx, id, "list", map[string]string{"price_wei": priceWei})
}

// UpdateQuality records a quality score in [0,100] and the verification flag.
func (c *Client) UpdateQuality(ctx context.Context, id uint64, score int, verified bool) (*Batch, error) {
	return c.mutate(ctx, id, "quality", map[string]any{"score": score, "verified": verified})
}

// UpdateMetadata replaces the batch's metadata CID.
func (c *Client) UpdateMetadata(ctx context.Context, id uint64, metadataCID string) (*Batch, error) {
	return c.mutate(ctx, id, "metadata", map[string]string{"metadata_cid": metadataCID})
}

// AddProvenance appends a provenance note authored by the caller.
func (c *Client) AddProvenance(ctx context.Context, id uint64, cid string) (*Batch, error) {
	return c.mutate(ctx, id, "provenance", map[string]string{"cid": cid})
}

// FundEscrow deposits amountWei, which must equal the listed price.
func (c *Client) FundEscrow(ctx context.Context, id uint64, amountWei string) (*Batch, error) {
	return c.mutate(ctx, id, "fund", map[string]string{"amount_wei": amountWei})
}

// MarkDelivered records delivery. Farmer only.
func (c *Client) MarkDelivered(ctx context.Context, id uint64) (*Batch, error) {
	return c.mutate(ctx, id, "deliver", nil)
}

// Release pays the escrow to the farmer. Buyer only.
func (c *Client) Release(ctx context.Context, id uint64) (*Batch, error) {
	return c.mutate(ctx, id, "release", nil)
}

// Refund returns the escrow to the buyer.
func (c *Client) Refund(ctx context.Context, id uint64) (*Batch, error) {
	return c.mutate(ctx, id, "refund", nil)
}

// GetBatch fetches a batch by id.
func (c *Client) GetBatch(ctx context.Context, id uint64) (*Batch, error) {
	var b Batch
	if err := c.call(ctx, http.MethodGet, batchPath(id, ""), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetProvenance returns the batch's provenance notes in append order.
func (c *Client) GetProvenance(ctx context.Context, id uint64) ([]ProvenanceEntry, error) {
	var resp struct {
		Provenance []ProvenanceEntry `json:"provenance"`
	}
	if err := c.call(ctx, http.MethodGet, batchPath(id, "provenance"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Provenance, nil
}

// IncentiveBalance returns the incentive points held by principal.
func (c *Client) IncentiveBalance(ctx context.Context, principal string) (uint64, error) {
	var resp struct {
		Points uint64 `json:"points"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/incentives/"+url.PathEscape(principal), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Points, nil
}

// PutContent uploads data to the content store and returns its CID.
func (c *Client) PutContent(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/content", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	var resp struct {
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.CID, nil
}

// GetContent downloads the blob addressed by cid.
func (c *Client) GetContent(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/content/"+url.PathEscape(cid), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

// AuditOverview returns the audit chain length and root hash.
func (c *Client) AuditOverview(ctx context.Context) (*AuditOverview, error) {
	var out AuditOverview
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAudit asks the ledger to walk its audit chain.
func (c *Client) VerifyAudit(ctx context.Context) (*AuditVerifyResult, error) {
	var out AuditVerifyResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) mutate(ctx context.Context, id uint64, action string, payload any) (*Batch, error) {
	var b Batch
	if err := c.call(ctx, http.MethodPost, batchPath(id, action), payload, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func batchPath(id uint64, action string) string {
	p := "/api/v1/batches/" + strconv.FormatUint(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

// call sends a JSON request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return nil, apiErr
	}
	return body, nil
}
