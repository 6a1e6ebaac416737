package content

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte // keyed by multihash so v0 and v1 CIDs resolve alike
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores data and returns its CID.
func (s *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	if err := checkPut(data); err != nil {
		return "", err
	}
	c, err := Sum(data)
	if err != nil {
		return "", err
	}
	cp := append([]byte(nil), data...)

	s.mu.Lock()
	s.blobs[string(c.Hash())] = cp
	s.mu.Unlock()
	return c.String(), nil
}

// Get returns the blob addressed by c.
func (s *MemoryStore) Get(_ context.Context, c string) ([]byte, error) {
	id, err := Parse(c)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[string(id.Hash())]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
