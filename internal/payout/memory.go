// Package payout moves released and refunded escrow out of the ledger.
package payout

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/service"
)

// Hook runs inside MemoryGateway.Transfer before the payment is booked.
// A non-nil error fails the transfer.
type Hook func(ctx context.Context, p service.Payment) error

// MemoryGateway books payments into in-process balances. It backs local
// deployments and tests; the hook lets tests act as the receiving party.
type MemoryGateway struct {
	mu       sync.Mutex
	balances map[common.Address]model.Amount
	payments []service.Payment
	hook     Hook
}

// NewMemoryGateway creates an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{balances: make(map[common.Address]model.Amount)}
}

// SetHook installs fn to run on every subsequent transfer. nil removes it.
func (g *MemoryGateway) SetHook(fn Hook) {
	g.mu.Lock()
	g.hook = fn
	g.mu.Unlock()
}

// Transfer implements service.Transferer.
func (g *MemoryGateway) Transfer(ctx context.Context, p service.Payment) error {
	g.mu.Lock()
	hook := g.hook
	g.mu.Unlock()

	// The hook may call back into the engine, so it runs unlocked.
	if hook != nil {
		if err := hook(ctx, p); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	bal, err := g.balances[p.To.Address()].Add(p.Amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", p.To, err)
	}
	g.balances[p.To.Address()] = bal
	g.payments = append(g.payments, p)
	return nil
}

// Balance returns the total amount paid to p.
func (g *MemoryGateway) Balance(p model.Principal) model.Amount {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[p.Address()]
}

// Payments returns the booked payments in order.
func (g *MemoryGateway) Payments() []service.Payment {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]service.Payment, len(g.payments))
	copy(out, g.payments)
	return out
}
