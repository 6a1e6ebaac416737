package payout_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/service"
	"github.com/jmerrifield20/produce-escrow/internal/payout"
	"go.uber.org/zap"
)

var farmer = model.MustPrincipal("0x1111111111111111111111111111111111111111")

func payment(amount uint64) service.Payment {
	return service.Payment{BatchID: 1, Kind: service.PaymentRelease, To: farmer, Amount: model.NewAmount(amount)}
}

func TestMemoryGateway_books(t *testing.T) {
	g := payout.NewMemoryGateway()
	ctx := context.Background()

	if err := g.Transfer(ctx, payment(600)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := g.Transfer(ctx, payment(400)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := g.Balance(farmer); !got.Eq(model.NewAmount(1000)) {
		t.Errorf("expected 1000, got %s", got)
	}
	if n := len(g.Payments()); n != 2 {
		t.Errorf("expected 2 payments, got %d", n)
	}
}

func TestMemoryGateway_hookFailure(t *testing.T) {
	g := payout.NewMemoryGateway()
	boom := errors.New("boom")
	g.SetHook(func(context.Context, service.Payment) error { return boom })

	if err := g.Transfer(context.Background(), payment(5)); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if !g.Balance(farmer).IsZero() || len(g.Payments()) != 0 {
		t.Error("failed transfer was booked")
	}
}

func TestHTTPGateway_success(t *testing.T) {
	var instr payout.Instruction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(payout.SignatureHeader) != payout.Sign(body, "secret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.Unmarshal(body, &instr); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := payout.NewHTTPGateway(srv.URL, "secret", zap.NewNop())
	if err := g.Transfer(context.Background(), payment(1000)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if instr.To != farmer || !instr.AmountWei.Eq(model.NewAmount(1000)) || instr.Kind != service.PaymentRelease {
		t.Errorf("unexpected instruction %+v", instr)
	}
}

func TestHTTPGateway_rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient liquidity", http.StatusConflict)
	}))
	defer srv.Close()

	g := payout.NewHTTPGateway(srv.URL, "secret", zap.NewNop())
	if err := g.Transfer(context.Background(), payment(1)); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
