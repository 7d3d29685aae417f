// Package conductor orders packages by their dependencies and drives the
// initialize, build dir merge, compile commands and gn targets stages.
package conductor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/buildmerge"
	"git.home.luguber.info/inful/pkgindex/internal/cdb"
	"git.home.luguber.info/inful/pkgindex/internal/eventstore"
	"git.home.luguber.info/inful/pkgindex/internal/gntargets"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/metrics"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	"git.home.luguber.info/inful/pkgindex/internal/toolchain"
)

// Stage names.
const (
	StageInitialize = "initialize"
	StageMerge      = "merge_build_dirs"
)

// EventSink receives run events. *eventstore.Emitter satisfies it.
type EventSink interface {
	Emit(ctx context.Context, event eventstore.Event) error
}

// Config holds what a run needs besides the packages.
type Config struct {
	RunID     string
	Handler   *pathfix.Handler
	Toolchain toolchain.Toolchain
	// SrcDir is the host checkout root.
	SrcDir        string
	IgnorableDirs []string
	// ResultBuildDir receives every package build dir when WithBuildDirMerge
	// is set.
	ResultBuildDir    string
	WithBuildDirMerge bool
	KeepGoing         bool

	Recorder metrics.Recorder
	Events   EventSink
}

// Result is what a run produced.
type Result struct {
	// Packages are the packages that passed initialization, in dependency order.
	Packages        []*packages.Package
	Conflicts       pathfix.ConflictMap
	CompileCommands []cdb.Entry
	Targets         gntargets.Targets
	Failures        []packages.Failure
	Stages          map[string]time.Duration
}

// Conductor runs the stages over a package set.
type Conductor struct {
	cfg Config
}

// New returns a Conductor for cfg.
func New(cfg Config) *Conductor {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	return &Conductor{cfg: cfg}
}

// Run orders pkgs and runs every stage over them.
func (c *Conductor) Run(ctx context.Context, pkgs []*packages.Package) (*Result, error) {
	start := time.Now()
	res := &Result{Conflicts: pathfix.ConflictMap{}, Stages: map[string]time.Duration{}}

	err := c.run(ctx, pkgs, res)

	c.cfg.Recorder.ObserveRunDuration(time.Since(start))
	outcome := metrics.RunOutcomeSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.RunOutcomeCanceled
	case err != nil:
		outcome = metrics.RunOutcomeFailed
	case len(res.Failures) > 0:
		outcome = metrics.RunOutcomeWarning
	}
	c.cfg.Recorder.IncRunOutcome(outcome)
	c.emit(ctx)(eventstore.NewRunCompleted(c.cfg.RunID, string(outcome), time.Since(start), len(res.Failures), err))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Conductor) run(ctx context.Context, pkgs []*packages.Package, res *Result) error {
	ordered, err := OrderPackages(pkgs)
	if err != nil {
		return err
	}
	names := make([]string, len(ordered))
	for i, p := range ordered {
		names[i] = p.Name
	}
	c.emit(ctx)(eventstore.NewRunStarted(c.cfg.RunID, names))

	if err := c.stage(ctx, res, StageInitialize, func() error {
		res.Packages, err = c.initialize(ctx, ordered, res)
		return err
	}); err != nil {
		return err
	}

	resultBuildDir := ""
	if c.cfg.WithBuildDirMerge {
		resultBuildDir = c.cfg.ResultBuildDir
		if err := c.stage(ctx, res, StageMerge, func() error {
			return c.mergeBuildDirs(ctx, res)
		}); err != nil {
			return err
		}
	}

	if err := c.stage(ctx, res, cdb.Stage, func() error {
		gen := cdb.NewGenerator(c.cfg.Toolchain, c.cfg.Handler, cdb.Options{
			ResultBuildDir: resultBuildDir,
			Conflicts:      res.Conflicts,
			SrcDir:         c.cfg.SrcDir,
			IgnorableDirs:  c.cfg.IgnorableDirs,
		}, c.cfg.KeepGoing)
		entries, failures, err := gen.Generate(ctx, res.Packages)
		if err != nil {
			return err
		}
		res.CompileCommands = entries
		c.recordFailures(ctx, res, cdb.Stage, failures)
		c.cfg.Recorder.SetCompileCommands(len(entries))
		return nil
	}); err != nil {
		return err
	}

	return c.stage(ctx, res, gntargets.Stage, func() error {
		gen := gntargets.NewGenerator(c.cfg.Toolchain, c.cfg.Handler, gntargets.Options{
			ResultBuildDir: resultBuildDir,
			Conflicts:      res.Conflicts,
			IgnorableDirs:  c.cfg.IgnorableDirs,
		}, c.cfg.KeepGoing)
		targets, failures, err := gen.Generate(ctx, res.Packages)
		if err != nil {
			return err
		}
		res.Targets = targets
		c.recordFailures(ctx, res, gntargets.Stage, failures)
		c.cfg.Recorder.SetTargets(len(targets))
		return nil
	})
}

// initialize drops, with keepGoing, every package that fails together with
// the packages depending on it.
func (c *Conductor) initialize(ctx context.Context, ordered []*packages.Package, res *Result) ([]*packages.Package, error) {
	failed := map[string]bool{}
	kept := make([]*packages.Package, 0, len(ordered))
	for _, pkg := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.initializePackage(pkg, failed)
		if err == nil {
			c.cfg.Recorder.IncPackageResult(StageInitialize, true)
			kept = append(kept, pkg)
			continue
		}
		if !c.cfg.KeepGoing {
			return nil, err
		}
		failed[pkg.Name] = true
		c.recordFailures(ctx, res, StageInitialize, []packages.Failure{{Package: pkg.Name, Stage: StageInitialize, Err: err}})
		slog.Warn("Dropping package", logfields.Package(pkg.Name), logfields.Stage(StageInitialize), logfields.Error(err))
	}
	return kept, nil
}

func (c *Conductor) initializePackage(pkg *packages.Package, failed map[string]bool) error {
	for _, dep := range pkg.Dependencies {
		if failed[dep.Name] {
			return fmt.Errorf("%s: dependency %s was dropped", pkg.Name, dep.Name)
		}
	}
	return pkg.Initialize()
}

func (c *Conductor) mergeBuildDirs(ctx context.Context, res *Result) error {
	m := buildmerge.New(c.cfg.ResultBuildDir)
	for _, pkg := range res.Packages {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta, err := m.Append(pkg)
		if err != nil {
			c.cfg.Recorder.IncPackageResult(StageMerge, false)
			return err
		}
		c.cfg.Recorder.IncPackageResult(StageMerge, true)
		c.cfg.Recorder.AddConflicts(len(delta))
		for original, renamed := range delta {
			c.emit(ctx)(eventstore.NewConflictRecorded(c.cfg.RunID, pkg.Name, original, renamed))
		}
	}
	res.Conflicts.Merge(m.Conflicts())
	slog.Info("Merged build dirs",
		logfields.Path(c.cfg.ResultBuildDir), logfields.Count(m.Copied()))
	return nil
}

func (c *Conductor) recordFailures(ctx context.Context, res *Result, stage string, failures []packages.Failure) {
	for _, f := range failures {
		c.cfg.Recorder.IncPackageResult(stage, false)
		c.emit(ctx)(eventstore.NewPackageSkipped(c.cfg.RunID, f.Package, stage, f.Err))
	}
	res.Failures = append(res.Failures, failures...)
}

func (c *Conductor) stage(ctx context.Context, res *Result, name string, fn func() error) error {
	slog.Info("Stage started", logfields.Stage(name))
	start := time.Now()
	err := fn()
	d := time.Since(start)
	res.Stages[name] = d

	c.cfg.Recorder.ObserveStageDuration(name, d)
	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result = metrics.ResultCanceled
	case err != nil:
		result = metrics.ResultFatal
	}
	c.cfg.Recorder.IncStageResult(name, result)
	if err != nil {
		return err
	}
	slog.Info("Stage completed", logfields.Stage(name), logfields.DurationMS(float64(d.Milliseconds())))
	c.emit(ctx)(eventstore.NewStageCompleted(c.cfg.RunID, name, d))
	return nil
}

// emit returns a recorder for a freshly built event. Failures are logged and
// never fail the run.
func (c *Conductor) emit(ctx context.Context) func(eventstore.Event, error) {
	return func(event eventstore.Event, err error) {
		if c.cfg.Events == nil {
			return
		}
		if err != nil {
			slog.Warn("Cannot encode event", logfields.Error(err))
			return
		}
		// Recording history must not depend on the run's own cancellation.
		if err := c.cfg.Events.Emit(context.WithoutCancel(ctx), event); err != nil {
			slog.Warn("Cannot record event", logfields.EventType(event.Type()), logfields.Error(err))
		}
	}
}

// EncodeJSON renders v as indented JSON with a trailing newline, the format
// of every index file a run writes.
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}
