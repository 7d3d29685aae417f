package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// Manager handles the output directory of a run.
type Manager struct {
	dir      string
	buildDir string
	clean    bool
}

// NewManager returns a manager for dir. buildDir is the shared result build
// dir; when clean is set it is emptied by Prepare.
func NewManager(dir, buildDir string, clean bool) *Manager {
	return &Manager{
		dir:      filepath.Clean(dir),
		buildDir: filepath.Clean(buildDir),
		clean:    clean,
	}
}

// Dir returns the output directory.
func (m *Manager) Dir() string { return m.dir }

// BuildDir returns the result build dir.
func (m *Manager) BuildDir() string { return m.buildDir }

// Prepare creates the output directory and the result build dir.
func (m *Manager) Prepare() error {
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if m.clean {
		if m.buildDir == m.dir || m.buildDir == "/" || m.buildDir == "." {
			return fmt.Errorf("refusing to clean build dir %s", m.buildDir)
		}
		if err := os.RemoveAll(m.buildDir); err != nil {
			return fmt.Errorf("failed to clean build dir: %w", err)
		}
		slog.Info("Cleaned result build dir", logfields.Path(m.buildDir))
	}
	if err := os.MkdirAll(m.buildDir, 0o750); err != nil {
		return fmt.Errorf("failed to create build dir: %w", err)
	}
	slog.Debug("Prepared workspace", logfields.Path(m.dir))
	return nil
}

// Path resolves name against the output directory. Absolute names are kept.
func (m *Manager) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.dir, name)
}

// WriteFile atomically replaces the file name (resolved with Path) with data.
// It returns the final path.
func (m *Manager) WriteFile(name string, data []byte) (string, error) {
	path := m.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { // #nosec G302 -- index files are read by editors
		return "", fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return path, nil
}
