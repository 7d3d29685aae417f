// Package commands implements the pkgindex subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pkgindex/internal/build"
	"git.home.luguber.info/inful/pkgindex/internal/config"
	"git.home.luguber.info/inful/pkgindex/internal/eventstore"
	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/metrics"
	"git.home.luguber.info/inful/pkgindex/internal/notify"
)

const historySize = 100

// Global is shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pkgindex.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Generate GenerateCmd `cmd:"" help:"Generate compile_commands.json and gn_targets.json"`
	Order    OrderCmd    `cmd:"" help:"Print the packages in dependency order"`
	History  HistoryCmd  `cmd:"" help:"Show recorded index runs"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
	Daemon   DaemonCmd   `cmd:"" help:"Keep the index up to date on a schedule and on input changes"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// Selection holds the flags that pick what to index.
type Selection struct {
	Packages string `short:"p" help:"Package list written by discovery (overrides packages.file)" type:"path"`
	Board    string `short:"b" help:"Board to index (overrides setup.board)"`
}

// loadConfig loads the configuration and applies the selection flags.
func loadConfig(path string, sel Selection) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.SetBoard(sel.Board)
	if sel.Packages != "" {
		cfg.Packages.File = sel.Packages
	}
	return cfg, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// stack is a build service wired to the optional metrics, history and
// notification backends of cfg.
type stack struct {
	svc        *build.DefaultService
	recorder   *metrics.PrometheusRecorder
	store      *eventstore.SQLiteStore
	projection *eventstore.RunHistoryProjection
	publisher  notify.Publisher
}

func newStack(ctx context.Context, cfg *config.Config, serveMetrics bool) (*stack, error) {
	s := &stack{svc: build.NewService(), publisher: notify.NoopPublisher{}}

	if cfg.Metrics.Textfile != "" || (serveMetrics && cfg.Metrics.Listen != "") {
		s.recorder = metrics.NewPrometheusRecorder(prom.NewRegistry())
		s.svc.WithRecorder(s.recorder)
	}

	if cfg.History.Database != "" {
		store, projection, err := openHistory(ctx, cfg.History.Database)
		if err != nil {
			return nil, err
		}
		s.store, s.projection = store, projection
		s.svc.WithEvents(eventstore.NewEmitter(store, projection).WithRetention(cfg.History.KeepRuns))
	}

	if cfg.Notify.NatsURL != "" {
		pub, err := notify.NewNATSPublisher(cfg.Notify.NatsURL, cfg.Notify.Subject)
		if err != nil {
			// Indexing does not depend on the notification channel.
			slog.Warn("Run summaries will not be published", logfields.URL(cfg.Notify.NatsURL), logfields.Error(err))
		} else {
			s.publisher = pub
			s.svc.WithPublisher(pub)
		}
	}
	return s, nil
}

func openHistory(ctx context.Context, path string) (*eventstore.SQLiteStore, *eventstore.RunHistoryProjection, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, nil, errors.WrapError(err, errors.CategoryFileSystem, "cannot create history directory").
				WithContext("path", path).
				Build()
		}
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	projection := eventstore.NewRunHistoryProjection(store, historySize)
	if err := projection.Rebuild(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, projection, nil
}

func (s *stack) Close() {
	if err := s.publisher.Close(); err != nil {
		slog.Warn("Closing notification connection failed", logfields.Error(err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Closing history database failed", logfields.Error(err))
		}
	}
}
