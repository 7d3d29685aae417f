package gntargets

import (
	"fmt"
	"log/slog"
	"reflect"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// mergeable reports whether differing values of field are unioned. Any
// other field must be equal across packages.
func mergeable(field string) bool {
	switch field {
	case "all_dependent_configs", "defines", "deps", "cflags_c", "cflags_cc",
		"include_dirs", "inputs", "lib_dirs", "libs", "outputs":
		return true
	}
	return false
}

// MergeConflictError reports a target field that two packages define
// differently.
type MergeConflictError struct {
	Package  string
	Target   string
	Field    string
	Existing any
	Incoming any
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("%s: conflicting '%s' in '%s': %v vs %v", e.Package, e.Field, e.Target, e.Existing, e.Incoming)
}

// Category classifies the error as a merge failure.
func (e *MergeConflictError) Category() ferrors.ErrorCategory { return ferrors.CategoryMerge }

// Merger accumulates fixed targets across packages.
type Merger struct {
	targets Targets
}

// NewMerger returns an empty Merger.
func NewMerger() *Merger {
	return &Merger{targets: Targets{}}
}

// Targets returns the merged graph.
func (m *Merger) Targets() Targets { return m.targets }

// Append merges the targets of pkgName. Nothing is merged when any field
// conflicts.
func (m *Merger) Append(pkgName string, incoming Targets) error {
	type update struct {
		label, field string
		value        any
	}
	var updates []update

	for label, fields := range incoming {
		existing, ok := m.targets[label]
		if !ok {
			continue
		}
		slog.Debug("Merging existing target", logfields.Package(pkgName), logfields.Target(label))
		for field, value := range fields {
			current, ok := existing[field]
			if !ok || reflect.DeepEqual(current, value) {
				continue
			}
			merged, ok := mergeLists(field, current, value)
			if !ok {
				return &MergeConflictError{Package: pkgName, Target: label, Field: field, Existing: current, Incoming: value}
			}
			slog.Debug("Merging existing field",
				logfields.Package(pkgName), logfields.Target(label), logfields.Field(field))
			updates = append(updates, update{label: label, field: field, value: merged})
		}
	}

	for label, fields := range incoming {
		existing, ok := m.targets[label]
		if !ok {
			existing = make(map[string]any, len(fields))
			m.targets[label] = existing
		}
		for field, value := range fields {
			if _, ok := existing[field]; !ok {
				existing[field] = value
			}
		}
	}
	for _, u := range updates {
		m.targets[u.label][u.field] = u.value
	}
	return nil
}

// mergeLists keeps first and appends the elements of second it lacks.
func mergeLists(field string, first, second any) (any, bool) {
	if !mergeable(field) {
		return nil, false
	}
	a, okA := first.([]any)
	b, okB := second.([]any)
	if !okA || !okB {
		return nil, false
	}
	out := append([]any(nil), a...)
	for _, item := range b {
		if !containsValue(out, item) {
			out = append(out, item)
		}
	}
	return out, true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}
