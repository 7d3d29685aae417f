// Package daemon keeps the index fresh: it re-runs the pipeline on a schedule
// and when the configuration or the package list changes.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/build"
	"git.home.luguber.info/inful/pkgindex/internal/config"
	"git.home.luguber.info/inful/pkgindex/internal/eventstore"
	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/metrics"
	"git.home.luguber.info/inful/pkgindex/internal/observability"
)

// Triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerWatch    = "watch"
)

// Options configures a Daemon.
type Options struct {
	// ConfigPath is reloaded before every run. Without it the initial
	// configuration is used throughout.
	ConfigPath string
	KeepGoing  bool
	// Board and PackagesFile override the configuration, including reloaded
	// ones, when set.
	Board        string
	PackagesFile string
	// Metrics is served on metrics.listen when both are set.
	Metrics *metrics.PrometheusRecorder
	// History backs the /status endpoint.
	History *eventstore.RunHistoryProjection
}

// Daemon runs the index pipeline until its context is canceled.
type Daemon struct {
	svc  build.Service
	opts Options

	mu      sync.Mutex
	cfg     *config.Config
	running bool
	pending string
	status  Status
	wg      sync.WaitGroup
}

// New returns a daemon for the loaded configuration cfg.
func New(cfg *config.Config, svc build.Service, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	if svc == nil {
		return nil, ferrors.DaemonError("build service required").Build()
	}
	d := &Daemon{
		svc:    svc,
		opts:   opts,
		cfg:    cfg,
		status: Status{StartedAt: time.Now()},
	}
	d.applyOverrides(cfg)
	return d, nil
}

// Run performs an initial run, then schedules and watches until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.config()
	interval, debounce := cfg.Daemon.Schedule()

	sched, err := NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "cannot create scheduler").Build()
	}
	if err := sched.Schedule(interval, cfg.Daemon.Cron, func() { d.Trigger(ctx, TriggerSchedule) }); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "cannot schedule index run").
			WithContext("interval", cfg.Daemon.Interval).
			WithContext("cron", cfg.Daemon.Cron).
			Build()
	}

	var watcher *Watcher
	if cfg.Daemon.Watch {
		files := []string{cfg.Packages.File}
		if d.opts.ConfigPath != "" {
			files = append(files, d.opts.ConfigPath)
		}
		watcher, err = NewWatcher(files, debounce, func() {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.Trigger(ctx, TriggerWatch)
			}()
		})
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryDaemon, "cannot watch inputs").Build()
		}
		watcher.Start(ctx)
	}

	var srv *http.Server
	if cfg.Metrics.Listen != "" && d.opts.Metrics != nil {
		srv = d.newServer(cfg.Metrics.Listen)
		go func() {
			slog.Info("Serving metrics", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
	}

	sched.Start()
	d.Trigger(ctx, TriggerStartup)

	<-ctx.Done()
	slog.Info("Shutting down daemon")

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			slog.Warn("Closing watcher failed", logfields.Error(err))
		}
	}
	_ = sched.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown failed", logfields.Error(err))
		}
	}
	d.wg.Wait()
	return nil
}

// Trigger runs the pipeline unless a run is already going, in which case one
// follow-up run is queued. It returns once no run is left to do.
func (d *Daemon) Trigger(ctx context.Context, trigger string) {
	d.mu.Lock()
	if d.running {
		d.pending = trigger
		d.mu.Unlock()
		slog.Info("Run in progress, queued follow-up", logfields.Trigger(trigger))
		return
	}
	d.running = true
	d.mu.Unlock()

	for {
		d.runOnce(ctx, trigger)

		d.mu.Lock()
		if d.pending == "" || ctx.Err() != nil {
			d.running = false
			d.pending = ""
			d.mu.Unlock()
			return
		}
		trigger = d.pending
		d.pending = ""
		d.mu.Unlock()
	}
}

func (d *Daemon) runOnce(ctx context.Context, trigger string) {
	ctx = observability.WithTrigger(ctx, trigger)
	cfg := d.reload(ctx)

	res, err := d.svc.Run(ctx, build.Request{Config: cfg, KeepGoing: d.opts.KeepGoing})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Runs++
	now := time.Now()
	d.status.LastRunAt = &now
	d.status.LastTrigger = trigger
	d.status.LastError = ""
	if res != nil {
		d.status.LastRunID = res.RunID
		d.status.LastStatus = string(res.Status)
	}
	if err != nil {
		d.status.Failures++
		d.status.LastError = err.Error()
		if res == nil {
			d.status.LastStatus = string(build.StatusFailed)
		}
		observability.WarnContext(ctx, "Daemon run failed", logfields.Error(err))
	}
}

// reload reads the configuration file again. A broken file keeps the
// previous configuration.
func (d *Daemon) reload(ctx context.Context) *config.Config {
	if d.opts.ConfigPath == "" {
		return d.config()
	}
	cfg, err := config.Load(d.opts.ConfigPath)
	if err != nil {
		observability.WarnContext(ctx, "Keeping previous configuration",
			logfields.Path(d.opts.ConfigPath), logfields.Error(err))
		return d.config()
	}
	d.applyOverrides(cfg)

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return cfg
}

func (d *Daemon) applyOverrides(cfg *config.Config) {
	cfg.SetBoard(d.opts.Board)
	if d.opts.PackagesFile != "" {
		cfg.Packages.File = d.opts.PackagesFile
	}
}

func (d *Daemon) config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Status returns a snapshot of the daemon state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Running = d.running
	return s
}
