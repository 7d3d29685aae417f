package eventstore

import (
	"context"
	"log/slog"
)

// Emitter persists events and keeps a projection current.
type Emitter struct {
	store      Store
	projection *RunHistoryProjection
	keepRuns   int
}

// NewEmitter returns an emitter. Either argument may be nil.
func NewEmitter(store Store, projection *RunHistoryProjection) *Emitter {
	return &Emitter{store: store, projection: projection}
}

// WithRetention prunes the store down to keepRuns runs whenever a run
// completes. 0 keeps every run.
func (e *Emitter) WithRetention(keepRuns int) *Emitter {
	e.keepRuns = keepRuns
	return e
}

// Emit records event. The projection is updated even when persisting fails.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if e == nil {
		return nil
	}
	if e.projection != nil {
		e.projection.Apply(event)
	}
	if e.store == nil {
		return nil
	}
	if err := e.store.Append(ctx, event.RunID(), event.Type(), event.Payload(), event.Metadata()); err != nil {
		return err
	}
	if event.Type() == TypeRunCompleted && e.keepRuns > 0 {
		n, err := e.store.Prune(ctx, e.keepRuns)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Debug("Pruned run history", slog.Int64("events", n), slog.Int("keep_runs", e.keepRuns))
		}
	}
	return nil
}
