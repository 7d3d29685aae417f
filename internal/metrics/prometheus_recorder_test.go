package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("compile_commands", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncStageResult("compile_commands", ResultSuccess)
	pr.IncRunOutcome(RunOutcomeSuccess)
	pr.IncPackageResult("compile_commands", true)
	pr.AddConflicts(3)
	pr.SetCompileCommands(42)
	pr.SetTargets(7)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["pkgindex_stage_duration_seconds"])
	assert.True(t, names["pkgindex_build_output_conflicts_total"])
	assert.True(t, names["pkgindex_compile_commands"])
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.SetTargets(5)

	path := filepath.Join(t.TempDir(), "pkgindex.prom")
	require.NoError(t, pr.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pkgindex_gn_targets 5")
}

func TestHandlerServesRunAndRuntimeMetrics(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.AddConflicts(1)

	rec := httptest.NewRecorder()
	h := pr.Handler()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pkgindex_build_output_conflicts_total"))
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	// A second handler reuses the registered runtime collectors.
	assert.NotNil(t, pr.Handler())
}
