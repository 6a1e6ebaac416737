package service

import (
	"context"

	"github.com/jmerrifield20/produce-escrow/internal/ledger/model"
)

// Emitter receives every event the engine produces. Emit must not call back
// into the engine synchronously; it runs while the engine lock is held.
type Emitter interface {
	Emit(ctx context.Context, evt model.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, evt model.Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, evt model.Event) { f(ctx, evt) }

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(context.Context, model.Event) {}

// MultiEmitter fans an event out to every emitter in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(ctx context.Context, evt model.Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, evt)
		}
	}
}

// Recorder collects events in memory. Useful in tests and for replaying a
// batch's history.
type Recorder struct {
	Events []model.Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, evt model.Event) {
	r.Events = append(r.Events, evt)
}

// Kinds returns the recorded event kinds in emission order.
func (r *Recorder) Kinds() []model.EventKind {
	out := make([]model.EventKind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}
