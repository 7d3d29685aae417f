package eventstore

import (
	"context"
	"time"
)

// Store persists run events.
type Store interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
	// GetByRunID returns the events of a run in insertion order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)
	GetByPackage(ctx context.Context, pkg string) ([]Event, error)
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	// Prune keeps the events of the keepRuns most recent runs.
	Prune(ctx context.Context, keepRuns int) (int64, error)
	Close() error
}
