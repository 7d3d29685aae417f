package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPackage    = "package"
	KeyPath       = "path"
	KeyActual     = "actual"
	KeyOriginal   = "original"
	KeyField      = "field"
	KeyTarget     = "target"
	KeyFile       = "file"
	KeyCount      = "count"
	KeyReason     = "reason"
	KeyBoard      = "board"
	KeySubject    = "subject"
	KeyURL        = "url"
	KeyEventType  = "event_type"
	KeyTrigger    = "trigger"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Actual(p string) slog.Attr       { return slog.String(KeyActual, p) }
func Original(p string) slog.Attr     { return slog.String(KeyOriginal, p) }
func Field(name string) slog.Attr     { return slog.String(KeyField, name) }
func Target(label string) slog.Attr   { return slog.String(KeyTarget, label) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Board(b string) slog.Attr        { return slog.String(KeyBoard, b) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func EventType(t string) slog.Attr    { return slog.String(KeyEventType, t) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
