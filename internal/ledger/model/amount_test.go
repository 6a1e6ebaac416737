package model_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0", "0", false},
		{"1000", "1000", false},
		{" 42 ", "42", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", "115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639936", "", true},
		{"-1", "", true},
		{"1.5", "", true},
		{"0x10", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := model.ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, model.ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAmountAdd_overflow(t *testing.T) {
	top, err := model.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if err != nil {
		t.Fatalf("ParseAmount: %v", err)
	}
	if _, err := top.Add(model.NewAmount(1)); !errors.Is(err, model.ErrAmountOverflow) {
		t.Errorf("expected ErrAmountOverflow, got %v", err)
	}
	sum, err := model.NewAmount(40).Add(model.NewAmount(2))
	if err != nil || !sum.Eq(model.NewAmount(42)) {
		t.Errorf("expected 42, got %s (%v)", sum, err)
	}
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(model.NewAmount(1000))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"1000"` {
		t.Errorf("expected quoted decimal, got %s", b)
	}

	var req model.FundEscrowRequest
	if err := json.Unmarshal([]byte(`{"amount_wei": 1000}`), &req); err != nil {
		t.Fatalf("Unmarshal number: %v", err)
	}
	if !req.AmountWei.Eq(model.NewAmount(1000)) {
		t.Errorf("expected 1000, got %s", req.AmountWei)
	}
	err = json.Unmarshal([]byte(`{"amount_wei": "-5"}`), &req)
	if err == nil || !strings.Contains(err.Error(), "invalid amount") {
		t.Errorf("expected invalid amount error, got %v", err)
	}
}
