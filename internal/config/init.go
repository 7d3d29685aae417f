package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

const exampleHeader = `# pkgindex configuration.
#
# Environment references like ${HOME} are expanded before parsing; a .env file
# in the working directory is loaded first.
#
# Empty setup dirs are derived from cros_dir and board:
#   chroot_dir = {cros_dir}/chroot
#   board_dir  = {chroot_dir}/build/{board}
#   src_dir    = {cros_dir}/src
`

// Example returns the configuration written by Init.
func Example() Config {
	merge := true
	return Config{
		Setup: SetupConfig{
			CrosDir:       "${HOME}/chromiumos",
			SourceRoot:    "/mnt/host/source",
			Board:         "amd64-generic",
			IgnorableDirs: []string{"src/platform2/vm_tools/proto"},
		},
		Packages: PackagesConfig{
			File: "packages.json",
			Skip: []string{"chromeos-base/*-test"},
		},
		Output: OutputConfig{
			Directory:       "./out",
			BuildDir:        "out/Default",
			CompileCommands: "compile_commands.json",
			GnTargets:       "gn_targets.json",
			Manifest:        "pkgindex-manifest.json",
			Report:          "pkgindex-report.md",
		},
		Run: RunConfig{WithBuildDirMerge: &merge},
		Toolchain: ToolchainConfig{
			Mode:                ToolchainSDK,
			CrosSDK:             "cros_sdk",
			DumpCompileCommands: "compile_commands.json",
			DumpGnTargets:       "gn_targets.json",
			Retries:             2,
			RetryBackoff:        "linear",
			RetryInitial:        "1s",
			RetryMax:            "30s",
		},
		History: HistoryConfig{Database: "./out/pkgindex-history.db", KeepRuns: 200},
		Notify:  NotifyConfig{Subject: "pkgindex.runs"},
		Daemon: DaemonConfig{
			Interval: "6h",
			Watch:    true,
			Debounce: "5s",
		},
	}
}

// Init writes an example configuration file to path. An existing file is
// only replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Example()
	var buf bytes.Buffer
	buf.WriteString(exampleHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&example); err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}

	// #nosec G306 -- the example holds no secrets
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
