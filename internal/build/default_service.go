package build

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/cdb"
	"git.home.luguber.info/inful/pkgindex/internal/conductor"
	"git.home.luguber.info/inful/pkgindex/internal/config"
	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/git"
	"git.home.luguber.info/inful/pkgindex/internal/gntargets"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/manifest"
	"git.home.luguber.info/inful/pkgindex/internal/metrics"
	"git.home.luguber.info/inful/pkgindex/internal/notify"
	"git.home.luguber.info/inful/pkgindex/internal/observability"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	"git.home.luguber.info/inful/pkgindex/internal/report"
	"git.home.luguber.info/inful/pkgindex/internal/toolchain"
	"git.home.luguber.info/inful/pkgindex/internal/workspace"
)

// StageSelect is the stage recorded for packages filtered out before the run.
const StageSelect = "select"

// ToolchainFactory creates the toolchain used to dump per-package data.
type ToolchainFactory func(cfg *config.Config) toolchain.Toolchain

// DefaultToolchain picks the toolchain named by toolchain.mode.
func DefaultToolchain(cfg *config.Config) toolchain.Toolchain {
	if cfg.Toolchain.Mode == config.ToolchainDump {
		return toolchain.Dump{
			CompileCommandsFile: cfg.Toolchain.DumpCompileCommands,
			GnTargetsFile:       cfg.Toolchain.DumpGnTargets,
		}
	}
	return toolchain.NewSDK(cfg.Toolchain.CrosSDK, cfg.Translator()).WithRetry(cfg.Toolchain.RetryPolicy())
}

type textfileWriter interface {
	WriteTextfile(path string) error
}

// DefaultService is the standard implementation of Service.
type DefaultService struct {
	toolchainFactory ToolchainFactory
	recorder         metrics.Recorder
	events           conductor.EventSink
	publisher        notify.Publisher
}

// NewService creates a DefaultService with the default toolchain and no
// metrics, history or notifications.
func NewService() *DefaultService {
	return &DefaultService{
		toolchainFactory: DefaultToolchain,
		recorder:         metrics.NoopRecorder{},
		publisher:        notify.NoopPublisher{},
	}
}

// WithToolchainFactory replaces the toolchain factory (for testing).
func (s *DefaultService) WithToolchainFactory(factory ToolchainFactory) *DefaultService {
	s.toolchainFactory = factory
	return s
}

// WithRecorder sets the metrics recorder. A recorder that can write a
// Prometheus textfile does so after every run when metrics.textfile is set.
func (s *DefaultService) WithRecorder(r metrics.Recorder) *DefaultService {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
	return s
}

// WithEvents sets the sink receiving run events.
func (s *DefaultService) WithEvents(sink conductor.EventSink) *DefaultService {
	s.events = sink
	return s
}

// WithPublisher sets where run summaries are published.
func (s *DefaultService) WithPublisher(p notify.Publisher) *DefaultService {
	if p == nil {
		p = notify.NoopPublisher{}
	}
	s.publisher = p
	return s
}

// Run executes the complete pipeline. The manifest, report and notification
// are produced even when the run fails.
func (s *DefaultService) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Config == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	cfg := req.Config
	start := time.Now()

	m := manifest.New(cfg.Setup.Board)
	result := &Result{RunID: m.ID, Manifest: m}
	ctx = observability.WithRunID(ctx, m.ID)
	ws := workspace.NewManager(cfg.Output.Directory, cfg.Output.BuildDir, cfg.Output.Clean)

	observability.InfoContext(ctx, "Starting index run",
		logfields.Board(cfg.Setup.Board),
		logfields.Path(cfg.Packages.File))

	err := s.run(ctx, cfg, req.KeepGoing || cfg.Run.KeepGoing, ws, result)
	result.Status = statusFor(err, result.Index)
	m.Finish(string(result.Status), err)
	result.Duration = time.Since(start)

	s.finish(ctx, cfg, ws, result)

	attrs := []slog.Attr{
		slog.String("status", string(result.Status)),
		slog.Int("packages", m.Counts.Packages),
		slog.Int("skipped", m.Counts.Skipped),
		slog.Int("compile_commands", m.Counts.CompileCommands),
		slog.Int("targets", m.Counts.Targets),
		logfields.DurationMS(float64(result.Duration.Milliseconds())),
	}
	if err != nil {
		observability.ErrorContext(ctx, "Index run failed", append(attrs, logfields.Error(err))...)
		return result, err
	}
	observability.InfoContext(ctx, "Index run completed", attrs...)
	return result, nil
}

func (s *DefaultService) run(ctx context.Context, cfg *config.Config, keepGoing bool, ws *workspace.Manager, result *Result) error {
	if err := ws.Prepare(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot prepare output directory").
			WithContext("path", ws.Dir()).
			Build()
	}

	descs, err := packages.LoadDescriptors(cfg.Packages.File)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "cannot load package list").
			WithContext("path", cfg.Packages.File).
			Build()
	}
	skip, err := packages.NewSkipList(cfg.Packages.Skip)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid skip pattern").Build()
	}
	sel := packages.Select(descs, skip)
	result.Dropped = sel.Dropped
	for _, name := range sortedKeys(sel.Dropped) {
		observability.DebugContext(ctx, "Skipping unsupported package",
			logfields.Package(name),
			logfields.Reason(sel.Dropped[name].String()))
	}

	pkgs, err := packages.FromDescriptors(sel.Kept, cfg.Setup.BoardDir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid package list").Build()
	}

	cond := conductor.New(conductor.Config{
		RunID:             result.RunID,
		Handler:           pathfix.NewHandler(cfg.Translator()),
		Toolchain:         s.toolchainFactory(cfg),
		SrcDir:            cfg.Setup.SrcDir,
		IgnorableDirs:     cfg.Setup.IgnorableDirs,
		ResultBuildDir:    ws.BuildDir(),
		WithBuildDirMerge: cfg.MergeBuildDirs(),
		KeepGoing:         keepGoing,
		Recorder:          s.recorder,
		Events:            s.events,
	})
	index, err := cond.Run(ctx, pkgs)
	if err != nil {
		return err
	}
	result.Index = index
	recordPackages(result.Manifest, pkgs, index, sel.Dropped)

	entries := index.CompileCommands
	if entries == nil {
		entries = []cdb.Entry{}
	}
	if result.CompileCommandsPath, err = s.writeOutput(ws, result.Manifest, cfg.Output.CompileCommands, entries); err != nil {
		return err
	}
	targets := index.Targets
	if targets == nil {
		targets = gntargets.Targets{}
	}
	result.GnTargetsPath, err = s.writeOutput(ws, result.Manifest, cfg.Output.GnTargets, targets)
	return err
}

func (s *DefaultService) writeOutput(ws *workspace.Manager, m *manifest.RunManifest, name string, v any) (string, error) {
	data, err := conductor.EncodeJSON(v)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryInternal, "cannot encode output").
			WithContext("file", name).
			Build()
	}
	path, err := ws.WriteFile(name, data)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot write output").
			WithContext("path", ws.Path(name)).
			Build()
	}
	if err := m.AddOutput(path); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot hash output").
			WithContext("path", path).
			Build()
	}
	slog.Info("Wrote index file", logfields.Path(path))
	return path, nil
}

// finish writes the report and manifest, publishes the summary and exports
// metrics. Failures here are logged and never change the run status.
func (s *DefaultService) finish(ctx context.Context, cfg *config.Config, ws *workspace.Manager, result *Result) {
	m := result.Manifest
	ctx = context.WithoutCancel(ctx)

	md, page, err := report.Render(m)
	if err != nil {
		observability.WarnContext(ctx, "Failed to render report", logfields.Error(err))
	} else {
		if result.ReportPath, err = ws.WriteFile(cfg.Output.Report, md); err != nil {
			observability.WarnContext(ctx, "Failed to write report", logfields.Error(err))
		} else if _, err := ws.WriteFile(htmlName(cfg.Output.Report), page); err != nil {
			observability.WarnContext(ctx, "Failed to write HTML report", logfields.Error(err))
		}
	}

	if data, err := m.ToJSON(); err != nil {
		observability.WarnContext(ctx, "Failed to encode manifest", logfields.Error(err))
	} else if result.ManifestPath, err = ws.WriteFile(cfg.Output.Manifest, data); err != nil {
		observability.WarnContext(ctx, "Failed to write manifest", logfields.Error(err))
	}

	if err := s.publisher.Publish(ctx, notify.FromManifest(m)); err != nil {
		observability.WarnContext(ctx, "Failed to publish run summary", logfields.Error(err))
	}

	if cfg.Metrics.Textfile != "" {
		if w, ok := s.recorder.(textfileWriter); ok {
			if err := w.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				observability.WarnContext(ctx, "Failed to write metrics textfile",
					logfields.Path(cfg.Metrics.Textfile), logfields.Error(err))
			}
		}
	}
}

// recordPackages fills the package records and counts of m. Dropped packages
// come last, sorted by name.
func recordPackages(m *manifest.RunManifest, pkgs []*packages.Package, index *conductor.Result, dropped map[string]packages.Support) {
	failures := make(map[string]packages.Failure, len(index.Failures))
	for _, f := range index.Failures {
		if _, seen := failures[f.Package]; !seen {
			failures[f.Package] = f
		}
	}

	for _, p := range pkgs {
		rec := manifest.PackageRecord{
			Name:     p.Name,
			BuildDir: p.BuildDir,
			Volatile: p.IsHighlyVolatile,
		}
		if f, failed := failures[p.Name]; failed {
			rec.Skipped = true
			rec.Stage = f.Stage
			if f.Err != nil {
				rec.Error = f.Err.Error()
			}
		} else {
			dirs := make([]string, 0, len(p.SrcDirMatches))
			for _, dm := range p.SrcDirMatches {
				dirs = append(dirs, dm.Actual)
			}
			rec.SourceCommits = git.SourceCommits(dirs)
			m.Counts.Packages++
		}
		m.Packages = append(m.Packages, rec)
	}
	for _, name := range sortedKeys(dropped) {
		m.Packages = append(m.Packages, manifest.PackageRecord{
			Name:    name,
			Skipped: true,
			Stage:   StageSelect,
			Error:   dropped[name].String(),
		})
	}
	for _, rec := range m.Packages {
		if rec.Skipped {
			m.Counts.Skipped++
		}
	}

	if len(index.Conflicts) > 0 {
		m.Conflicts = make(map[string]string, len(index.Conflicts))
		for orig, renamed := range index.Conflicts {
			m.Conflicts[orig] = renamed
		}
	}
	m.Counts.Conflicts = len(index.Conflicts)
	m.Counts.CompileCommands = len(index.CompileCommands)
	m.Counts.Targets = len(index.Targets)
}

func statusFor(err error, index *conductor.Result) Status {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	case err != nil:
		return StatusFailed
	case index != nil && len(index.Failures) > 0:
		return StatusWarning
	default:
		return StatusSuccess
	}
}

func htmlName(report string) string {
	return strings.TrimSuffix(report, filepath.Ext(report)) + ".html"
}

func sortedKeys(m map[string]packages.Support) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
