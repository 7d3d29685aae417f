package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func must(t *testing.T) func(Event, error) Event {
	return func(e Event, err error) Event {
		t.Helper()
		if err != nil {
			t.Fatalf("failed to create event: %v", err)
		}
		return e
	}
}

func TestRunHistoryProjection_ApplyEvents(t *testing.T) {
	ev := must(t)
	projection := NewRunHistoryProjection(newTestStore(t), 10)
	runID := "run-123"

	projection.Apply(ev(NewRunStarted(runID, []string{"chromeos-base/foo", "chromeos-base/bar"})))

	summary, exists := projection.Run(runID)
	if !exists {
		t.Fatal("expected run to exist")
	}
	if summary.Status != "running" {
		t.Errorf("expected status 'running', got %q", summary.Status)
	}
	if summary.Packages != 2 {
		t.Errorf("expected 2 packages, got %d", summary.Packages)
	}

	projection.Apply(ev(NewConflictRecorded(runID, "chromeos-base/bar", "/build/out/lib/a.so", "/result/lib/bar_a.so")))
	projection.Apply(ev(NewPackageSkipped(runID, "chromeos-base/bar", "gn_targets", errors.New("no .gn file"))))
	projection.Apply(ev(NewStageCompleted(runID, "compile_commands", 1500*time.Millisecond)))
	projection.Apply(ev(NewRunCompleted(runID, "warning", 3*time.Second, 1, nil)))

	summary, _ = projection.Run(runID)
	if summary.Status != "warning" {
		t.Errorf("expected status 'warning', got %q", summary.Status)
	}
	if summary.Conflicts != 1 {
		t.Errorf("expected 1 conflict, got %d", summary.Conflicts)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Error != "no .gn file" {
		t.Errorf("unexpected skipped packages: %+v", summary.Skipped)
	}
	if summary.Stages["compile_commands"] != 1500*time.Millisecond {
		t.Errorf("expected compile_commands stage of 1.5s, got %v", summary.Stages["compile_commands"])
	}
	if summary.Duration != 3*time.Second {
		t.Errorf("expected duration 3s, got %v", summary.Duration)
	}
	if summary.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	history := projection.History()
	if len(history) != 1 || history[0].RunID != runID {
		t.Fatalf("expected history with %s, got %+v", runID, history)
	}
}

func TestRunHistoryProjection_RunFailed(t *testing.T) {
	ev := must(t)
	projection := NewRunHistoryProjection(newTestStore(t), 10)

	projection.Apply(ev(NewRunStarted("run-failed", nil)))
	projection.Apply(ev(NewRunCompleted("run-failed", "failed", time.Second, 0, errors.New("dependency cycle"))))

	summary, exists := projection.Run("run-failed")
	if !exists {
		t.Fatal("expected run to exist")
	}
	if summary.Status != "failed" {
		t.Errorf("expected status 'failed', got %q", summary.Status)
	}
	if summary.Error != "dependency cycle" {
		t.Errorf("expected error 'dependency cycle', got %q", summary.Error)
	}
}

func TestRunHistoryProjection_Rebuild(t *testing.T) {
	ev := must(t)
	ctx := context.Background()
	store := newTestStore(t)
	runID := "run-rebuild"

	for _, e := range []Event{
		ev(NewRunStarted(runID, []string{"a"})),
		ev(NewConflictRecorded(runID, "a", "x", "y")),
		ev(NewRunCompleted(runID, "success", time.Second, 0, nil)),
	} {
		if err := store.Append(ctx, e.RunID(), e.Type(), e.Payload(), nil); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	projection := NewRunHistoryProjection(store, 10)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("failed to rebuild: %v", err)
	}

	summary, exists := projection.Run(runID)
	if !exists {
		t.Fatal("expected run to exist after rebuild")
	}
	if summary.Status != "success" {
		t.Errorf("expected status 'success', got %q", summary.Status)
	}
	if summary.Conflicts != 1 {
		t.Errorf("expected 1 conflict, got %d", summary.Conflicts)
	}
	if len(projection.History()) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(projection.History()))
	}
	if projection.LastSyncTime().IsZero() {
		t.Error("expected last sync time to be set")
	}
}

func TestRunHistoryProjection_HistoryLimit(t *testing.T) {
	ev := must(t)
	projection := NewRunHistoryProjection(newTestStore(t), 3)

	for i := range 5 {
		runID := "run-" + string(rune('a'+i))
		projection.Apply(ev(NewRunStarted(runID, nil)))
		projection.Apply(ev(NewRunCompleted(runID, "success", time.Second, 0, nil)))
	}

	history := projection.History()
	if len(history) != 3 {
		t.Fatalf("expected history length 3, got %d", len(history))
	}
	if history[0].RunID != "run-e" {
		t.Errorf("expected newest run first, got %q", history[0].RunID)
	}
	if _, ok := projection.Run("run-a"); ok {
		t.Error("expected run-a to be pruned")
	}
	if last := projection.LastCompleted(); last == nil || last.RunID != "run-e" {
		t.Errorf("expected run-e as last completed, got %+v", last)
	}
}

func TestRunHistoryProjection_Active(t *testing.T) {
	ev := must(t)
	projection := NewRunHistoryProjection(newTestStore(t), 10)

	if projection.Active() != nil {
		t.Error("expected no active run initially")
	}

	projection.Apply(ev(NewRunStarted("active", nil)))
	active := projection.Active()
	if active == nil || active.RunID != "active" {
		t.Fatalf("expected active run, got %+v", active)
	}

	projection.Apply(ev(NewRunCompleted("active", "success", time.Second, 0, nil)))
	if projection.Active() != nil {
		t.Error("expected no active run after completion")
	}
}

func TestEmitterPersistsAndProjects(t *testing.T) {
	ev := must(t)
	store := newTestStore(t)
	projection := NewRunHistoryProjection(store, 10)
	emitter := NewEmitter(store, projection)

	if err := emitter.Emit(t.Context(), ev(NewRunStarted("run-emit", []string{"a"}))); err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	events, err := store.GetByRunID(t.Context(), "run-emit")
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d (%v)", len(events), err)
	}
	if projection.Active() == nil {
		t.Error("expected projection to track the run")
	}

	var nilEmitter *Emitter
	if err := nilEmitter.Emit(t.Context(), events[0]); err != nil {
		t.Errorf("nil emitter should be a no-op, got %v", err)
	}
}

func TestEmitterRetention(t *testing.T) {
	ev := must(t)
	store := newTestStore(t)
	emitter := NewEmitter(store, nil).WithRetention(1)

	for _, run := range []string{"old", "new"} {
		if err := emitter.Emit(t.Context(), ev(NewRunStarted(run, nil))); err != nil {
			t.Fatalf("emit failed: %v", err)
		}
		if err := emitter.Emit(t.Context(), ev(NewRunCompleted(run, "success", time.Second, 0, nil))); err != nil {
			t.Fatalf("emit failed: %v", err)
		}
	}

	old, _ := store.GetByRunID(t.Context(), "old")
	recent, _ := store.GetByRunID(t.Context(), "new")
	if len(old) != 0 || len(recent) != 2 {
		t.Errorf("expected only the new run kept, got old=%d new=%d", len(old), len(recent))
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := Decode[RunCompleted](&BaseEvent{EventType: TypeRunCompleted, EventPayload: []byte("{")})
	if err == nil {
		t.Fatal("expected decode error")
	}
}
