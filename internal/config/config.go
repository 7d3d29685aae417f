// Package config loads the pkgindex YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pkgindex/internal/chroot"
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/retry"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "pkgindex.yaml"

// Config is the complete pkgindex configuration.
type Config struct {
	Setup     SetupConfig     `yaml:"setup"`
	Packages  PackagesConfig  `yaml:"packages"`
	Output    OutputConfig    `yaml:"output"`
	Run       RunConfig       `yaml:"run"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// SetupConfig locates the ChromiumOS checkout and the board.
type SetupConfig struct {
	CrosDir    string `yaml:"cros_dir"`
	ChrootDir  string `yaml:"chroot_dir"`
	SourceRoot string `yaml:"source_root"`
	Board      string `yaml:"board"`
	BoardDir   string `yaml:"board_dir"`
	SrcDir     string `yaml:"src_dir"`
	// IgnorableDirs are host dirs whose contents may be missing from the
	// checkout without failing the run.
	IgnorableDirs []string `yaml:"ignorable_dirs,omitempty"`
}

type PackagesConfig struct {
	File string   `yaml:"file"`
	Skip []string `yaml:"skip,omitempty"`
}

// OutputConfig names the run outputs. Relative file names resolve against
// Directory.
type OutputConfig struct {
	Directory       string `yaml:"directory"`
	BuildDir        string `yaml:"build_dir"`
	CompileCommands string `yaml:"compile_commands"`
	GnTargets       string `yaml:"gn_targets"`
	Manifest        string `yaml:"manifest"`
	Report          string `yaml:"report"`
	Clean           bool   `yaml:"clean"`
}

type RunConfig struct {
	KeepGoing         bool  `yaml:"keep_going"`
	WithBuildDirMerge *bool `yaml:"with_build_dir_merge,omitempty"`
}

// ToolchainMode selects how per-package dumps are obtained.
type ToolchainMode string

const (
	ToolchainSDK  ToolchainMode = "sdk"
	ToolchainDump ToolchainMode = "dump"
)

type ToolchainConfig struct {
	Mode                ToolchainMode `yaml:"mode"`
	CrosSDK             string        `yaml:"cros_sdk"`
	DumpCompileCommands string        `yaml:"dump_compile_commands"`
	DumpGnTargets       string        `yaml:"dump_gn_targets"`
	// Retries re-runs a failed cros_sdk invocation. 0 disables retrying.
	Retries      int    `yaml:"retries"`
	RetryBackoff string `yaml:"retry_backoff"`
	RetryInitial string `yaml:"retry_initial"`
	RetryMax     string `yaml:"retry_max"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// HistoryConfig enables the SQLite run history when Database is set.
type HistoryConfig struct {
	Database string `yaml:"database,omitempty"`
	// KeepRuns bounds the database to the most recent runs. 0 keeps all.
	KeepRuns int `yaml:"keep_runs,omitempty"`
}

type NotifyConfig struct {
	NatsURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// DaemonConfig schedules re-runs. Cron takes precedence over Interval.
type DaemonConfig struct {
	Interval string `yaml:"interval"`
	Cron     string `yaml:"cron,omitempty"`
	Watch    bool   `yaml:"watch"`
	Debounce string `yaml:"debounce"`
}

// Load reads the configuration at path. A .env file in the working directory
// is loaded first; environment references in the file are expanded before
// parsing.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", path).
				WithCause(err).
				Build()
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes, defaults and validates configuration data. Relative paths
// resolve against baseDir.
func Parse(data []byte, baseDir string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid configuration file").Fatal().Build()
	}
	if err := NewDefaultApplier(baseDir).ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Configuration loaded",
		slog.String("board", cfg.Setup.Board),
		logfields.Path(cfg.Setup.CrosDir))
	return &cfg, nil
}

// Translator returns the chroot path translator of the checkout.
func (c *Config) Translator() *chroot.Translator {
	return chroot.New(c.Setup.CrosDir, c.Setup.ChrootDir, c.Setup.SourceRoot)
}

// MergeBuildDirs reports whether package build dirs are merged into
// Output.BuildDir.
func (c *Config) MergeBuildDirs() bool {
	return c.Run.WithBuildDirMerge == nil || *c.Run.WithBuildDirMerge
}

// OutputPath resolves an output file name against the output directory.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Directory, name)
}

// Schedule returns the daemon interval and debounce durations. Both were
// checked by Validate.
func (d DaemonConfig) Schedule() (interval, debounce time.Duration) {
	interval, _ = time.ParseDuration(d.Interval)
	debounce, _ = time.ParseDuration(d.Debounce)
	return interval, debounce
}

// RetryPolicy returns the backoff policy for cros_sdk invocations. The
// durations were checked by Validate.
func (t ToolchainConfig) RetryPolicy() retry.Policy {
	initial, _ := time.ParseDuration(t.RetryInitial)
	maxDelay, _ := time.ParseDuration(t.RetryMax)
	return retry.NewPolicy(retry.Mode(t.RetryBackoff), initial, maxDelay, t.Retries)
}

// SetBoard switches the configuration to board and re-derives the board dir.
func (c *Config) SetBoard(board string) {
	if board == "" || board == c.Setup.Board {
		return
	}
	c.Setup.Board = board
	c.Setup.BoardDir = filepath.Join(c.Setup.ChrootDir, "build", board)
}
