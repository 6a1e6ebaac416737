package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/produce-escrow/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

func stubLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "Bearer token required"})
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["metadata_cid"] == "" || body["price_wei"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "missing fields", "code": "invalid_request"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 7})
	})

	mux.HandleFunc("GET /api/v1/batches/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":                7,
			"farmer":            "0x1111111111111111111111111111111111111111",
			"metadata_cid":      "QmHarvest",
			"price_wei":         "1000",
			"escrow_amount_wei": "0",
			"state":             "listed",
			"provenance":        []any{},
		})
	})

	mux.HandleFunc("POST /api/v1/batches/7/fund", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"error": "batch already has a buyer", "code": "already_has_buyer"})
	})

	mux.HandleFunc("POST /api/v1/batches/7/release", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":                7,
			"state":             "released",
			"escrow_amount_wei": "0",
		})
	})

	mux.HandleFunc("GET /api/v1/incentives/{principal}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"principal": r.PathValue("principal"), "points": 100})
	})

	mux.HandleFunc("POST /api/v1/content", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if string(data) != "harvest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"cid": "bafkreitest"})
	})

	mux.HandleFunc("GET /api/v1/audit/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestCreateBatch(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))

	id, err := c.CreateBatch(context.Background(), "QmHarvest", "1000")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

func TestCreateBatch_unauthorized(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.CreateBatch(context.Background(), "QmHarvest", "1000")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
}

func TestGetBatch(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	b, err := c.GetBatch(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.State != "listed" || b.PriceWei != "1000" || b.Buyer != "" {
		t.Errorf("unexpected batch: %+v", b)
	}
}

func TestGetBatch_notFound(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.GetBatch(context.Background(), 8)
	if !client.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFundEscrow_errorCode(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))

	_, err := c.FundEscrow(context.Background(), 7, "1000")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "already_has_buyer" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestRelease(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))

	b, err := c.Release(context.Background(), 7)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if b.State != "released" {
		t.Errorf("state = %q, want released", b.State)
	}
}

func TestIncentiveBalance(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	points, err := c.IncentiveBalance(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("IncentiveBalance: %v", err)
	}
	if points != 100 {
		t.Errorf("points = %d, want 100", points)
	}
}

func TestPutContent(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL, client.WithBearerToken("tok"))

	cid, err := c.PutContent(context.Background(), []byte("harvest"))
	if err != nil {
		t.Fatalf("PutContent: %v", err)
	}
	if cid != "bafkreitest" {
		t.Errorf("cid = %q", cid)
	}
}

func TestVerifyAudit(t *testing.T) {
	srv := stubLedgerServer(t)
	c := client.MustNew(srv.URL)

	res, err := c.VerifyAudit(context.Background())
	if err != nil {
		t.Fatalf("VerifyAudit: %v", err)
	}
	if !res.Valid {
		t.Error("expected valid chain")
	}
}
