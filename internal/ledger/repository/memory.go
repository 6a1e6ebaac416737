package repository

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// MemoryStore is an in-memory, thread-safe batch registry and incentive
// ledger. It is the default store for tests and single-process deployments
// that do not need durability across restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     uint64
	batches    map[uint64]*model.Batch
	incentives map[common.Address]uint64
}

// NewMemoryStore creates an empty MemoryStore. The first batch gets id 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		batches:    make(map[uint64]*model.Batch),
		incentives: make(map[common.Address]uint64),
	}
}

// Create assigns the next id to b and stores a copy of it.
func (s *MemoryStore) Create(_ context.Context, b *model.Batch) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.nextID
	s.nextID++
	s.batches[b.ID] = b.Clone()
	return b.ID, nil
}

// Get returns a copy of the batch with the given id.
func (s *MemoryStore) Get(_ context.Context, id uint64) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return b.Clone(), nil
}

// Update replaces every field of the stored batch except its provenance,
// which only AppendProvenance may change.
func (s *MemoryStore) Update(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.batches[b.ID]
	if !ok {
		return model.ErrNotFound
	}
	next := b.Clone()
	next.Provenance = cur.Provenance
	s.batches[b.ID] = next
	return nil
}

// AppendProvenance appends e and returns its zero-based index.
func (s *MemoryStore) AppendProvenance(_ context.Context, id uint64, e model.ProvenanceEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return 0, model.ErrNotFound
	}
	b.Provenance = append(b.Provenance, e)
	return len(b.Provenance) - 1, nil
}

// IncentiveBalance returns the points held by p; unseen principals have 0.
func (s *MemoryStore) IncentiveBalance(_ context.Context, p model.Principal) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incentives[p.Address()], nil
}

// UpdateWithIncentive applies Update and adds delta to p's incentive
// balance as one change. Neither is applied if either fails. It returns the
// resulting balance.
func (s *MemoryStore) UpdateWithIncentive(_ context.Context, b *model.Batch, p model.Principal, delta int64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.batches[b.ID]
	if !ok {
		return 0, model.ErrNotFound
	}
	balance, err := adjustBalance(p, s.incentives[p.Address()], delta)
	if err != nil {
		return 0, err
	}

	next := b.Clone()
	next.Provenance = cur.Provenance
	s.batches[b.ID] = next
	if delta != 0 {
		s.incentives[p.Address()] = balance
	}
	return balance, nil
}

// Len returns the number of stored batches.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}
