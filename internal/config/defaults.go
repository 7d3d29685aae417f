package config

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/pkgindex/internal/retry"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier runs the domain appliers in order. Setup goes first
// because output paths may depend on it.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier returns the appliers for every domain. Relative paths are
// resolved against baseDir.
func NewDefaultApplier(baseDir string) *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&SetupDefaultApplier{baseDir: baseDir},
			&PackagesDefaultApplier{baseDir: baseDir},
			&OutputDefaultApplier{baseDir: baseDir},
			&ToolchainDefaultApplier{},
			&HistoryDefaultApplier{baseDir: baseDir},
			&NotifyDefaultApplier{},
			&DaemonDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// SetupDefaultApplier derives the chroot, board and source dirs from the
// checkout root.
type SetupDefaultApplier struct{ baseDir string }

func (s *SetupDefaultApplier) Domain() string { return "setup" }

func (s *SetupDefaultApplier) ApplyDefaults(cfg *Config) error {
	st := &cfg.Setup
	if st.CrosDir == "" {
		return nil
	}
	st.CrosDir = filepath.Clean(resolve(s.baseDir, st.CrosDir))
	if st.ChrootDir == "" {
		st.ChrootDir = filepath.Join(st.CrosDir, "chroot")
	}
	if st.SourceRoot == "" {
		st.SourceRoot = "/mnt/host/source"
	}
	if st.BoardDir == "" && st.Board != "" {
		st.BoardDir = filepath.Join(st.ChrootDir, "build", st.Board)
	}
	if st.SrcDir == "" {
		st.SrcDir = filepath.Join(st.CrosDir, "src")
	}
	for i, d := range st.IgnorableDirs {
		st.IgnorableDirs[i] = filepath.Clean(resolve(st.CrosDir, d))
	}
	return nil
}

type PackagesDefaultApplier struct{ baseDir string }

func (p *PackagesDefaultApplier) Domain() string { return "packages" }

func (p *PackagesDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Packages.File == "" {
		cfg.Packages.File = "packages.json"
	}
	cfg.Packages.File = resolve(p.baseDir, cfg.Packages.File)
	return nil
}

// OutputDefaultApplier fills in output file names. BuildDir is made absolute
// because it ends up in every compile command.
type OutputDefaultApplier struct{ baseDir string }

func (o *OutputDefaultApplier) Domain() string { return "output" }

func (o *OutputDefaultApplier) ApplyDefaults(cfg *Config) error {
	out := &cfg.Output
	if out.Directory == "" {
		out.Directory = "./out"
	}
	out.Directory = resolve(o.baseDir, out.Directory)
	if abs, err := filepath.Abs(out.Directory); err == nil {
		out.Directory = abs
	}
	if out.BuildDir == "" {
		out.BuildDir = filepath.Join("out", "Default")
	}
	out.BuildDir = cfg.OutputPath(out.BuildDir)
	if out.CompileCommands == "" {
		out.CompileCommands = "compile_commands.json"
	}
	if out.GnTargets == "" {
		out.GnTargets = "gn_targets.json"
	}
	if out.Manifest == "" {
		out.Manifest = "pkgindex-manifest.json"
	}
	if out.Report == "" {
		out.Report = "pkgindex-report.md"
	}
	return nil
}

type ToolchainDefaultApplier struct{}

func (t *ToolchainDefaultApplier) Domain() string { return "toolchain" }

func (t *ToolchainDefaultApplier) ApplyDefaults(cfg *Config) error {
	tc := &cfg.Toolchain
	if tc.Mode == "" {
		tc.Mode = ToolchainSDK
	}
	if tc.CrosSDK == "" {
		tc.CrosSDK = "cros_sdk"
	}
	if tc.DumpCompileCommands == "" {
		tc.DumpCompileCommands = "compile_commands.json"
	}
	if tc.DumpGnTargets == "" {
		tc.DumpGnTargets = "gn_targets.json"
	}
	if tc.RetryBackoff == "" {
		tc.RetryBackoff = string(retry.Linear)
	}
	if tc.RetryInitial == "" {
		tc.RetryInitial = "1s"
	}
	if tc.RetryMax == "" {
		tc.RetryMax = "30s"
	}
	return nil
}

// HistoryDefaultApplier resolves the history database and metrics textfile.
type HistoryDefaultApplier struct{ baseDir string }

func (h *HistoryDefaultApplier) Domain() string { return "history" }

func (h *HistoryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.History.Database != ":memory:" {
		cfg.History.Database = resolve(h.baseDir, cfg.History.Database)
	}
	cfg.Metrics.Textfile = resolve(h.baseDir, cfg.Metrics.Textfile)
	return nil
}

type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "pkgindex.runs"
	}
	return nil
}

type DaemonDefaultApplier struct{}

func (d *DaemonDefaultApplier) Domain() string { return "daemon" }

func (d *DaemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon.Interval == "" {
		cfg.Daemon.Interval = "6h"
	}
	if cfg.Daemon.Debounce == "" {
		cfg.Daemon.Debounce = "5s"
	}
	return nil
}
