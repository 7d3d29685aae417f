package pathfix

import (
	"context"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/akedrou/textdiff"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/observability"
)

// maxDiffSize bounds the files LogDrift renders a diff for.
const maxDiffSize = 64 * 1024

// SameContent reports whether a and b hold identical bytes. Results are
// cached per pair since the same headers are compared for every entry that
// includes them.
func (h *Handler) SameContent(a, b string) (bool, error) {
	key := [2]string{a, b}
	if same, ok := h.content.Get(key); ok {
		return same, nil
	}
	same, err := fsutil.SameContent(a, b)
	if err != nil {
		return false, err
	}
	h.content.Add(key, same)
	return same, nil
}

// LogDrift logs a unified diff between a temporary source and its checkout.
// Nothing is read unless debug logging is enabled.
func LogDrift(ctx context.Context, pkgName, what, tempPath, actualPath string) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	before, ok := readSmallText(tempPath)
	if !ok {
		return
	}
	after, ok := readSmallText(actualPath)
	if !ok {
		return
	}
	observability.DebugContext(ctx, "Source drifted from checkout",
		logfields.Package(pkgName),
		logfields.Field(what),
		slog.String("diff", textdiff.Unified(tempPath, actualPath, before, after)))
}

func readSmallText(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() > maxDiffSize {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
