package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/retry"
)

// Validate reports every problem found in the configuration as a single
// configuration error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Setup.CrosDir == "" {
		add("setup.cros_dir is required")
	}
	if c.Setup.Board == "" && c.Setup.BoardDir == "" {
		add("setup.board is required")
	}
	if !strings.HasPrefix(c.Setup.SourceRoot, "/") && c.Setup.SourceRoot != "" {
		add("setup.source_root must be absolute, got %q", c.Setup.SourceRoot)
	}
	for _, p := range c.Packages.Skip {
		if _, err := glob.Compile(p, '/'); err != nil {
			add("packages.skip: invalid pattern %q: %v", p, err)
		}
	}

	switch c.Toolchain.Mode {
	case ToolchainSDK, ToolchainDump:
	default:
		add("toolchain.mode must be %q or %q, got %q", ToolchainSDK, ToolchainDump, c.Toolchain.Mode)
	}

	if c.Toolchain.Retries < 0 {
		add("toolchain.retries must not be negative")
	}
	if !retry.Mode(c.Toolchain.RetryBackoff).Valid() {
		add("toolchain.retry_backoff must be %q, %q or %q, got %q",
			retry.Fixed, retry.Linear, retry.Exponential, c.Toolchain.RetryBackoff)
	}
	for _, f := range [][2]string{{"retry_initial", c.Toolchain.RetryInitial}, {"retry_max", c.Toolchain.RetryMax}} {
		if d, err := time.ParseDuration(f[1]); err != nil || d <= 0 {
			add("toolchain.%s must be a positive duration, got %q", f[0], f[1])
		}
	}

	if d, err := time.ParseDuration(c.Daemon.Interval); err != nil {
		add("daemon.interval: %v", err)
	} else if d <= 0 && c.Daemon.Cron == "" {
		add("daemon.interval must be positive")
	}
	if d, err := time.ParseDuration(c.Daemon.Debounce); err != nil {
		add("daemon.debounce: %v", err)
	} else if d < 0 {
		add("daemon.debounce must not be negative")
	}
	if c.History.KeepRuns < 0 {
		add("history.keep_runs must not be negative")
	}
	if c.Notify.NatsURL != "" && c.Notify.Subject == "" {
		add("notify.subject is required when notify.nats_url is set")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.ConfigError("configuration validation failed").
		WithContext("problems", problems).
		WithCause(fmt.Errorf("%s", strings.Join(problems, "; "))).
		Build()
}
