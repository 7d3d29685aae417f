// Package manifest records what an index run consumed and produced.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RunManifest is the record of a single run.
type RunManifest struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Board    string    `json:"board"`
	// Status is one of the run outcomes (success, warning, failed, canceled).
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Duration  int64             `json:"duration_ms"`
	Packages  []PackageRecord   `json:"packages"`
	Conflicts map[string]string `json:"conflicts,omitempty"`
	Outputs   []Output          `json:"outputs,omitempty"`
	Counts    Counts            `json:"counts"`
}

// PackageRecord describes one package of the run.
type PackageRecord struct {
	Name     string `json:"name"`
	BuildDir string `json:"build_dir,omitempty"`
	Volatile bool   `json:"volatile,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	// Stage and Error are set for skipped packages.
	Stage         string            `json:"stage,omitempty"`
	Error         string            `json:"error,omitempty"`
	SourceCommits map[string]string `json:"source_commits,omitempty"`
}

// Output is a file written by the run.
type Output struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

type Counts struct {
	Packages        int `json:"packages"`
	Skipped         int `json:"skipped"`
	Conflicts       int `json:"conflicts"`
	CompileCommands int `json:"compile_commands"`
	Targets         int `json:"targets"`
}

// New starts a manifest with a fresh run id.
func New(board string) *RunManifest {
	return &RunManifest{
		ID:      uuid.NewString(),
		Started: time.Now().UTC(),
		Board:   board,
	}
}

// Finish stamps the end of the run.
func (m *RunManifest) Finish(status string, err error) {
	m.Finished = time.Now().UTC()
	m.Duration = m.Finished.Sub(m.Started).Milliseconds()
	m.Status = status
	if err != nil {
		m.Error = err.Error()
	}
}

// AddOutput records path together with the sha256 of its content.
func (m *RunManifest) AddOutput(path string) error {
	sum, err := FileSHA256(path)
	if err != nil {
		return err
	}
	m.Outputs = append(m.Outputs, Output{Path: path, SHA256: sum})
	return nil
}

// FileSHA256 returns the hex sha256 of the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- outputs of this run
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ToJSON serializes the manifest to indented JSON.
func (m *RunManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*RunManifest, error) {
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Write stores the manifest at path.
func (m *RunManifest) Write(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Hash computes a deterministic hash of the run inputs: the board, the
// packages that were indexed and the commits of their sources. Two runs with
// equal hashes indexed the same sources.
func (m *RunManifest) Hash() (string, error) {
	type pkgInput struct {
		Name    string            `json:"name"`
		Skipped bool              `json:"skipped"`
		Commits map[string]string `json:"commits"`
	}
	pkgs := make([]pkgInput, 0, len(m.Packages))
	for _, p := range m.Packages {
		pkgs = append(pkgs, pkgInput{Name: p.Name, Skipped: p.Skipped, Commits: p.SourceCommits})
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })

	data, err := json.Marshal(struct {
		Board    string     `json:"board"`
		Packages []pkgInput `json:"packages"`
	}{m.Board, pkgs})
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
