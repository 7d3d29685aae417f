package cdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	"git.home.luguber.info/inful/pkgindex/internal/schema"
	"git.home.luguber.info/inful/pkgindex/internal/toolchain"
)

// Stage names the compile commands stage in failures and logs.
const Stage = "compile_commands"

// Generator produces, fixes and concatenates compilation databases.
type Generator struct {
	tc        toolchain.Toolchain
	handler   *pathfix.Handler
	opts      Options
	keepGoing bool
}

// NewGenerator returns a Generator. With keepGoing a package that cannot be
// fixed is logged and left out instead of failing the run.
func NewGenerator(tc toolchain.Toolchain, h *pathfix.Handler, opts Options, keepGoing bool) *Generator {
	return &Generator{tc: tc, handler: h, opts: opts, keepGoing: keepGoing}
}

// Generate fixes the database of every package, in order. Packages must be
// ordered so that dependencies come first.
func (g *Generator) Generate(ctx context.Context, pkgs []*packages.Package) ([]Entry, []packages.Failure, error) {
	includes := IncludeIndex{}
	result := []Entry{}
	var failures []packages.Failure

	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entries, err := g.generateForPackage(ctx, pkg, includes)
		if err != nil {
			if !g.keepGoing || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, err
			}
			slog.Warn("Failed to fix compile commands",
				logfields.Package(pkg.Name), logfields.Stage(Stage), logfields.Error(err))
			failures = append(failures, packages.Failure{Package: pkg.Name, Stage: Stage, Err: err})
			continue
		}
		result = append(result, entries...)
	}
	return result, failures, nil
}

func (g *Generator) generateForPackage(ctx context.Context, pkg *packages.Package, includes IncludeIndex) ([]Entry, error) {
	data, err := g.tc.CompileCommands(ctx, pkg)
	if err != nil {
		return nil, err
	}
	slog.Debug("Generated compile commands", logfields.Package(pkg.Name))

	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Name, err)
	}
	if len(entries) == 0 {
		slog.Warn("Compile commands are empty", logfields.Package(pkg.Name))
	}

	c, err := New(entries, pkg, g.handler, g.opts, includes)
	if err != nil {
		return nil, err
	}
	fixed, err := c.Fix(ctx)
	if err != nil {
		// Dependents must not inherit a partial include set.
		delete(includes, pkg.Name)
		return nil, err
	}
	return fixed, nil
}

// Parse validates and decodes a compilation database dump.
func Parse(data []byte) ([]Entry, error) {
	if err := schema.ValidateCompileCommands(data); err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode compile commands: %w", err)
	}
	return entries, nil
}
