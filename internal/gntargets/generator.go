package gntargets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	"git.home.luguber.info/inful/pkgindex/internal/schema"
	"git.home.luguber.info/inful/pkgindex/internal/toolchain"
)

// Stage names the gn targets stage in failures and logs.
const Stage = "gn_targets"

// Generator describes, fixes and merges the targets of packages.
type Generator struct {
	tc        toolchain.Toolchain
	handler   *pathfix.Handler
	opts      Options
	keepGoing bool
}

// NewGenerator returns a Generator. With keepGoing a package that cannot be
// fixed or merged is logged and left out instead of failing the run.
func NewGenerator(tc toolchain.Toolchain, h *pathfix.Handler, opts Options, keepGoing bool) *Generator {
	return &Generator{tc: tc, handler: h, opts: opts, keepGoing: keepGoing}
}

// Generate merges the fixed targets of every package, in order.
func (g *Generator) Generate(ctx context.Context, pkgs []*packages.Package) (Targets, []packages.Failure, error) {
	merger := NewMerger()
	var failures []packages.Failure

	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		err := g.generateForPackage(ctx, pkg, merger)
		if err == nil {
			slog.Debug("Targets merged", logfields.Package(pkg.Name))
			continue
		}
		if !g.keepGoing || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		slog.Warn("Failed to fix gn targets",
			logfields.Package(pkg.Name), logfields.Stage(Stage), logfields.Error(err))
		failures = append(failures, packages.Failure{Package: pkg.Name, Stage: Stage, Err: err})
	}
	return merger.Targets(), failures, nil
}

func (g *Generator) generateForPackage(ctx context.Context, pkg *packages.Package, merger *Merger) error {
	rootDir, err := FindRootDir(pkg)
	if err != nil {
		return err
	}
	data, err := g.tc.GnTargets(ctx, pkg, rootDir)
	if err != nil {
		return err
	}
	slog.Debug("Generated targets", logfields.Package(pkg.Name))

	targets, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", pkg.Name, err)
	}
	if len(targets) == 0 {
		slog.Warn("GN targets are empty", logfields.Package(pkg.Name))
	}

	fixed, err := New(targets, pkg, g.handler, g.opts).Fix(ctx)
	if err != nil {
		return err
	}
	return merger.Append(pkg.Name, fixed)
}

// FindRootDir returns the first temp source dir of pkg that holds a .gn file.
func FindRootDir(pkg *packages.Package) (string, error) {
	for _, m := range pkg.SrcDirMatches {
		if fsutil.IsRegular(filepath.Join(m.Temp, ".gn")) {
			return m.Temp, nil
		}
	}
	return "", packages.NewPathError(packages.KindMissingDirectory, pkg.Name, "Cannot find root dir")
}

// Parse extracts the JSON object from "gn desc" output, which may be
// surrounded by log lines, and validates it.
func Parse(data []byte) (Targets, error) {
	start, end := bytes.IndexByte(data, '{'), bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return nil, errors.New("gn targets output holds no JSON object")
	}
	data = data[start : end+1]

	if err := schema.ValidateGnTargets(data); err != nil {
		return nil, err
	}
	var targets Targets
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("decode gn targets: %w", err)
	}
	return targets, nil
}
