package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/produce-escrow/internal/content"
	"github.com/jmerrifield20/produce-escrow/internal/identity"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/handler"
	"go.uber.org/zap"
)

func setupContentRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := identity.NewTokenIssuer("test-secret-test-secret-test-secret!", "escrow-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	tok, err := tokens.Issue(farmer)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	r := gin.New()
	handler.NewContentHandler(content.NewMemoryStore(), tokens, zap.NewNop()).Register(r.Group("/api/v1"))
	return r, tok
}

func putContent(r *gin.Engine, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/content", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestContent_putGet(t *testing.T) {
	r, tok := setupContentRouter(t)
	doc := []byte(`{"crop":"tomatoes","harvested":"2026-08-01"}`)

	w := putContent(r, tok, doc)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		CID string `json:"cid"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp.CID, "bafk") {
		t.Errorf("unexpected cid %q", resp.CID)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/"+resp.CID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), doc) {
		t.Errorf("body = %q, want %q", w.Body.Bytes(), doc)
	}
}

func TestContent_putErrors(t *testing.T) {
	r, tok := setupContentRouter(t)

	if w := putContent(r, "", []byte("x")); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}
	if w := putContent(r, tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("empty: expected 400, got %d", w.Code)
	}
	if w := putContent(r, tok, make([]byte, content.MaxBlobSize+1)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: expected 413, got %d", w.Code)
	}
}

func TestContent_getErrors(t *testing.T) {
	r, _ := setupContentRouter(t)

	// A well-formed CID that was never stored.
	missing, err := content.Sum([]byte("never stored"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	tests := []struct {
		cid  string
		want int
	}{
		{"not-a-cid", http.StatusBadRequest},
		{missing.String(), http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/content/"+tt.cid, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.cid, tt.want, w.Code)
		}
	}
}
