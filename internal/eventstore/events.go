package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

// Event types recorded during a run.
const (
	TypeRunStarted       = "run.started"
	TypePackageSkipped   = "package.skipped"
	TypeConflictRecorded = "conflict.recorded"
	TypeStageCompleted   = "stage.completed"
	TypeRunCompleted     = "run.completed"
)

// RunStarted is emitted once the package graph has been ordered.
type RunStarted struct {
	Packages []string `json:"packages"`
}

// PackageSkipped is emitted when keep-going drops a package from a stage.
type PackageSkipped struct {
	Package string `json:"package"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// ConflictRecorded is emitted for every build artifact renamed while merging
// build dirs.
type ConflictRecorded struct {
	Package  string `json:"package"`
	Original string `json:"original"`
	Renamed  string `json:"renamed"`
}

type StageCompleted struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

// RunCompleted closes a run. Outcome is one of the run outcome labels
// (success, warning, failed, canceled).
type RunCompleted struct {
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Failures   int    `json:"failures"`
	Error      string `json:"error,omitempty"`
}

func newEvent(runID, eventType string, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryEventStore, ErrMarshalPayloadFailed.Message()).
			WithContext("run_id", runID).
			WithContext("type", eventType).
			Build()
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

func NewRunStarted(runID string, pkgs []string) (Event, error) {
	return newEvent(runID, TypeRunStarted, RunStarted{Packages: pkgs})
}

func NewPackageSkipped(runID, pkg, stage string, cause error) (Event, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return newEvent(runID, TypePackageSkipped, PackageSkipped{Package: pkg, Stage: stage, Error: msg})
}

func NewConflictRecorded(runID, pkg, original, renamed string) (Event, error) {
	return newEvent(runID, TypeConflictRecorded, ConflictRecorded{Package: pkg, Original: original, Renamed: renamed})
}

func NewStageCompleted(runID, stage string, d time.Duration) (Event, error) {
	return newEvent(runID, TypeStageCompleted, StageCompleted{Stage: stage, DurationMS: d.Milliseconds()})
}

// NewRunCompleted builds the terminal event of a run. A non-nil cause is
// recorded as the run error.
func NewRunCompleted(runID, outcome string, d time.Duration, failures int, cause error) (Event, error) {
	p := RunCompleted{Outcome: outcome, DurationMS: d.Milliseconds(), Failures: failures}
	if cause != nil {
		p.Error = cause.Error()
	}
	return newEvent(runID, TypeRunCompleted, p)
}

// Decode unmarshals the payload of e into T.
func Decode[T any](e Event) (T, error) {
	var v T
	if err := json.Unmarshal(e.Payload(), &v); err != nil {
		return v, errors.WrapError(err, errors.CategoryEventStore, "failed to unmarshal event payload").
			WithContext("type", e.Type()).
			Build()
	}
	return v, nil
}
