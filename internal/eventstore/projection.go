// Package eventstore records index runs as events in SQLite and projects them
// into a run history.
package eventstore

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const runStatusRunning = "running"

// RunSummary is the read model of a single run.
type RunSummary struct {
	RunID       string                   `json:"run_id"`
	Status      string                   `json:"status"` // "running" or a run outcome
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Duration    time.Duration            `json:"duration,omitempty"`
	Packages    int                      `json:"packages"`
	Skipped     []PackageSkipped         `json:"skipped,omitempty"`
	Conflicts   int                      `json:"conflicts"`
	Stages      map[string]time.Duration `json:"stages,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

func (s *RunSummary) clone() *RunSummary {
	cp := *s
	cp.Skipped = slices.Clone(s.Skipped)
	if s.Stages != nil {
		cp.Stages = make(map[string]time.Duration, len(s.Stages))
		for k, v := range s.Stages {
			cp.Stages[k] = v
		}
	}
	return &cp
}

// RunHistoryProjection maintains an in-memory view of recent runs,
// reconstructed from the events in a Store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary // completed runs, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a projection keeping at most maxHistorySize
// completed runs.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyLocked(event)
	}
	slices.SortStableFunc(p.history, func(a, b *RunSummary) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	p.trimLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(event)
}

func (p *RunHistoryProjection) applyLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{
			RunID:     runID,
			Status:    runStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()
		if payload, err := Decode[RunStarted](event); err == nil {
			summary.Packages = len(payload.Packages)
		}

	case TypePackageSkipped:
		if payload, err := Decode[PackageSkipped](event); err == nil {
			summary.Skipped = append(summary.Skipped, payload)
		}

	case TypeConflictRecorded:
		summary.Conflicts++

	case TypeStageCompleted:
		if payload, err := Decode[StageCompleted](event); err == nil {
			if summary.Stages == nil {
				summary.Stages = make(map[string]time.Duration)
			}
			summary.Stages[payload.Stage] = time.Duration(payload.DurationMS) * time.Millisecond
		}

	case TypeRunCompleted:
		completed := event.Timestamp()
		summary.CompletedAt = &completed
		summary.Duration = completed.Sub(summary.StartedAt)
		summary.Status = "failed"
		if payload, err := Decode[RunCompleted](event); err == nil {
			summary.Status = payload.Outcome
			summary.Error = payload.Error
			summary.Duration = time.Duration(payload.DurationMS) * time.Millisecond
		} else {
			slog.Debug("Ignoring malformed run.completed payload", slog.String("run_id", runID))
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	p.trimLocked()
}

// trimLocked bounds history and drops completed runs that fell out of it.
func (p *RunHistoryProjection) trimLocked() {
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// History returns completed runs, newest first.
func (p *RunHistoryProjection) History() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*RunSummary, len(p.history))
	for i, h := range p.history {
		result[i] = h.clone()
	}
	return result
}

// Run returns the summary of a specific run.
func (p *RunHistoryProjection) Run(runID string) (*RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.runs[runID]
	if !exists {
		return nil, false
	}
	return summary.clone(), true
}

// Active returns a run that has started but not completed, if any.
func (p *RunHistoryProjection) Active() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, summary := range p.runs {
		if summary.Status == runStatusRunning {
			return summary.clone()
		}
	}
	return nil
}

// LastCompleted returns the most recently completed run.
func (p *RunHistoryProjection) LastCompleted() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return nil
	}
	return p.history[0].clone()
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
