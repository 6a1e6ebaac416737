package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/repository"
)

// store is the method set shared by every registry implementation.
type store interface {
	Create(ctx context.Context, b *model.Batch) (uint64, error)
	Get(ctx context.Context, id uint64) (*model.Batch, error)
	Update(ctx context.Context, b *model.Batch) error
	AppendProvenance(ctx context.Context, id uint64, e model.ProvenanceEntry) (int, error)
	IncentiveBalance(ctx context.Context, p model.Principal) (uint64, error)
	UpdateWithIncentive(ctx context.Context, b *model.Batch, p model.Principal, delta int64) (uint64, error)
}

var (
	ctx    = context.Background()
	farmer = model.MustPrincipal("0x1111111111111111111111111111111111111111")
	buyer  = model.MustPrincipal("0x2222222222222222222222222222222222222222")
)

func openBadger(t *testing.T) *repository.BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewBadgerStore(db)
}

func stores(t *testing.T) map[string]store {
	t.Helper()
	return map[string]store{
		"memory": repository.NewMemoryStore(),
		"badger": openBadger(t),
	}
}

func newBatch() *model.Batch {
	return &model.Batch{
		Farmer:      farmer,
		MetadataCID: "cidA",
		PriceWei:    model.NewAmount(1000),
		State:       model.StateCreated,
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_sequentialIDs(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for want := uint64(1); want <= 3; want++ {
				b := newBatch()
				id, err := s.Create(ctx, b)
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if id != want || b.ID != want {
					t.Errorf("expected id %d, got %d (b.ID=%d)", want, id, b.ID)
				}
			}
		})
	}
}

func TestStore_getReturnsCopy(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := s.Create(ctx, newBatch())

			b, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			b.State = model.StateReleased

			again, _ := s.Get(ctx, id)
			if again.State != model.StateCreated {
				t.Errorf("mutating a returned batch leaked into the store")
			}
			if !again.PriceWei.Eq(model.NewAmount(1000)) || again.Farmer != farmer {
				t.Errorf("fields not round-tripped: %+v", again)
			}

			if _, err := s.Get(ctx, 99); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_updateKeepsProvenance(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := s.Create(ctx, newBatch())
			stale, _ := s.Get(ctx, id)

			if _, err := s.AppendProvenance(ctx, id, model.ProvenanceEntry{CID: "p0", Author: buyer}); err != nil {
				t.Fatalf("AppendProvenance: %v", err)
			}

			b := stale.Clone()
			b.State = model.StateListed
			buyerCopy := buyer
			b.Buyer = &buyerCopy
			if err := s.Update(ctx, b); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, _ := s.Get(ctx, id)
			if got.State != model.StateListed || got.Buyer == nil || *got.Buyer != buyer {
				t.Errorf("update not applied: %+v", got)
			}
			if len(got.Provenance) != 1 || got.Provenance[0].CID != "p0" {
				t.Errorf("update dropped provenance: %+v", got.Provenance)
			}

			missing := newBatch()
			missing.ID = 42
			if err := s.Update(ctx, missing); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_appendProvenanceOrder(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := s.Create(ctx, newBatch())
			cids := []string{"a", "b", "c", "d"}
			for i, c := range cids {
				idx, err := s.AppendProvenance(ctx, id, model.ProvenanceEntry{CID: c, Author: farmer})
				if err != nil {
					t.Fatalf("AppendProvenance: %v", err)
				}
				if idx != i {
					t.Errorf("expected index %d, got %d", i, idx)
				}
			}
			b, _ := s.Get(ctx, id)
			got := b.ProvenanceCIDs()
			for i := range cids {
				if got[i] != cids[i] {
					t.Fatalf("expected %v, got %v", cids, got)
				}
			}
			if _, err := s.AppendProvenance(ctx, 77, model.ProvenanceEntry{CID: "x"}); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_updateWithIncentive(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			bal, err := s.IncentiveBalance(ctx, farmer)
			if err != nil || bal != 0 {
				t.Fatalf("expected 0 for unseen principal, got %d (%v)", bal, err)
			}

			id, _ := s.Create(ctx, newBatch())
			b, _ := s.Get(ctx, id)
			b.State = model.StateReleased
			if _, err := s.UpdateWithIncentive(ctx, b, farmer, 100); err != nil {
				t.Fatalf("UpdateWithIncentive: %v", err)
			}
			bal, err = s.UpdateWithIncentive(ctx, b, farmer, 100)
			if err != nil {
				t.Fatalf("UpdateWithIncentive: %v", err)
			}
			if bal != 200 {
				t.Errorf("expected 200, got %d", bal)
			}
			if got, _ := s.Get(ctx, id); got.State != model.StateReleased {
				t.Errorf("batch not updated: %s", got.State)
			}
			if other, _ := s.IncentiveBalance(ctx, buyer); other != 0 {
				t.Errorf("credit leaked to another principal: %d", other)
			}

			b.State = model.StateDelivered
			if bal, err := s.UpdateWithIncentive(ctx, b, farmer, -100); err != nil || bal != 100 {
				t.Fatalf("debit: expected 100, got %d (%v)", bal, err)
			}
			if bal, err := s.UpdateWithIncentive(ctx, b, farmer, 0); err != nil || bal != 100 {
				t.Errorf("zero delta: expected balance 100, got %d (%v)", bal, err)
			}
		})
	}
}

func TestStore_updateWithIncentive_allOrNothing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _ := s.Create(ctx, newBatch())
			b, _ := s.Get(ctx, id)
			if _, err := s.UpdateWithIncentive(ctx, b, farmer, 50); err != nil {
				t.Fatalf("UpdateWithIncentive: %v", err)
			}

			b.State = model.StateListed
			if _, err := s.UpdateWithIncentive(ctx, b, farmer, -51); err == nil {
				t.Fatal("expected an error debiting past zero")
			}
			if got, _ := s.Get(ctx, id); got.State != model.StateCreated {
				t.Errorf("batch updated despite failed debit: %s", got.State)
			}

			missing := newBatch()
			missing.ID = 42
			if _, err := s.UpdateWithIncentive(ctx, missing, farmer, 10); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if bal, _ := s.IncentiveBalance(ctx, farmer); bal != 50 {
				t.Errorf("expected balance untouched at 50, got %d", bal)
			}
		})
	}
}
