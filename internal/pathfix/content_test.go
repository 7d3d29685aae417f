package pathfix_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgindex/internal/observability"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
)

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogDriftCarriesContextFields(t *testing.T) {
	f, l, _, _ := setup(t)
	temp := filepath.Join(l.TempSrcDir, "foo", "bar.cc")
	f.WriteFile(temp, "int main() { return 1; }\n")
	buf := captureLogs(t, slog.LevelDebug)

	ctx := observability.WithStage(context.Background(), "compile_commands")
	pathfix.LogDrift(ctx, l.Name, "file", temp, filepath.Join(l.SrcDir, "foo", "bar.cc"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "compile_commands", rec["stage"])
	assert.Equal(t, l.Name, rec["package"])
	assert.Contains(t, rec["diff"], "+int main() {}")
}

func TestLogDriftQuietAboveDebug(t *testing.T) {
	f, l, _, _ := setup(t)
	temp := filepath.Join(l.TempSrcDir, "foo", "bar.cc")
	f.WriteFile(temp, "changed\n")
	buf := captureLogs(t, slog.LevelInfo)

	pathfix.LogDrift(context.Background(), l.Name, "file", temp, filepath.Join(l.SrcDir, "foo", "bar.cc"))
	assert.Empty(t, buf.String())
}
