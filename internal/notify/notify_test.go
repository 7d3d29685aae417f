package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/manifest"
)

func TestFromManifest(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := &manifest.RunManifest{
		ID:       "run-7",
		Board:    "eve",
		Status:   "warning",
		Started:  started,
		Finished: started.Add(time.Minute),
		Outputs: []manifest.Output{
			{Path: "/out/compile_commands.json", SHA256: "aa"},
			{Path: "/out/gn_targets.json", SHA256: "bb"},
		},
		Counts: manifest.Counts{Packages: 3, Skipped: 1, Conflicts: 2, CompileCommands: 40, Targets: 9},
	}

	s := FromManifest(m)
	assert.Equal(t, Summary{
		RunID:           "run-7",
		Board:           "eve",
		Status:          "warning",
		Started:         started,
		Finished:        started.Add(time.Minute),
		Packages:        3,
		Skipped:         1,
		Conflicts:       2,
		CompileCommands: 40,
		Targets:         9,
		Outputs:         []string{"/out/compile_commands.json", "/out/gn_targets.json"},
	}, s)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"run-7"`)
	assert.NotContains(t, string(data), `"error"`)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	require.NoError(t, p.Publish(context.Background(), Summary{RunID: "x"}))
	require.NoError(t, p.Close())
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "pkgindex.runs")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotify))
}
