package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-memory, thread-safe Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
	nowFn   func() time.Time
}

// NewMemoryLog creates a MemoryLog holding only the genesis entry.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{nowFn: time.Now}
	l.entries = append(l.entries, genesisEntry(l.now()))
	return l
}

func (l *MemoryLog) now() time.Time { return l.nowFn().UTC() }

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, batchID uint64, kind, actor string, payload any) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.entries[len(l.entries)-1]
	entry := &Entry{
		Index:     len(l.entries),
		Timestamp: l.now(),
		BatchID:   batchID,
		Kind:      kind,
		Actor:     actor,
		DataHash:  sha256Sum(raw),
		PrevHash:  prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	l.entries = append(l.entries, entry)

	out := *entry
	return &out, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	out := *l.entries[index]
	return &out, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// ListByBatch implements Log.
func (l *MemoryLog) ListByBatch(_ context.Context, batchID uint64) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []*Entry{}
	for _, e := range l.entries[1:] {
		if e.BatchID == batchID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
