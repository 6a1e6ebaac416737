package auditlog

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
	"go.uber.org/zap"
)

// ErrEntryNotFound is returned by Get for an index outside the chain.
var ErrEntryNotFound = errors.New("audit entry not found")

// Log is the append-only audit chain. MemoryLog and PostgresLog implement it.
type Log interface {
	// Append chains a new entry. payload is JSON-encoded and only its
	// SHA-256 is kept.
	Append(ctx context.Context, batchID uint64, kind, actor string, payload any) (*Entry, error)

	// Get returns the entry at the zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len counts entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the whole chain and returns nil if it is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the newest entry.
	Root(ctx context.Context) (string, error)

	// ListByBatch returns the entries for one batch in chain order.
	ListByBatch(ctx context.Context, batchID uint64) ([]*Entry, error)
}

// Sink records engine events into a Log. It satisfies service.Emitter.
type Sink struct {
	log      Log
	logger   *zap.Logger
	onAppend func()
}

// NewSink creates a Sink writing to l.
func NewSink(l Log, logger *zap.Logger) *Sink {
	return &Sink{log: l, logger: logger}
}

// SetMetricsRecorder configures a callback run after each successful append.
func (s *Sink) SetMetricsRecorder(fn func()) {
	s.onAppend = fn
}

// Emit appends evt. Failures are logged; the operation that produced the
// event has already been committed.
func (s *Sink) Emit(ctx context.Context, evt model.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("audit: marshal event", zap.String("kind", string(evt.Kind)), zap.Error(err))
		return
	}
	entry, err := s.log.Append(ctx, evt.BatchID, string(evt.Kind), evt.Actor.String(), json.RawMessage(payload))
	if err != nil {
		s.logger.Error("audit: append",
			zap.Uint64("batch_id", evt.BatchID),
			zap.String("kind", string(evt.Kind)),
			zap.Error(err),
		)
		return
	}
	if s.onAppend != nil {
		s.onAppend()
	}
	s.logger.Debug("audit entry appended",
		zap.Int("idx", entry.Index),
		zap.Uint64("batch_id", evt.BatchID),
		zap.String("kind", entry.Kind),
	)
}
