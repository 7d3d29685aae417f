// Package gntargets fixes the paths in "gn desc" target descriptions and
// merges the descriptions of many packages into one target graph.
package gntargets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
)

// IgnorableExtensions are files that are usually generated late and may be
// missing when the description is taken.
var IgnorableExtensions = []string{".typemap"}

// Targets maps a target label to its fields as "gn desc" reports them.
type Targets map[string]map[string]any

type fieldKind int

const (
	fieldPassThrough fieldKind = iota
	fieldArgList
	fieldPathList
	fieldGeneratedPathList
	fieldOutputPatterns
	fieldScript
)

func kindOf(field string) fieldKind {
	switch field {
	case "args", "cflags", "cflags_c", "cflags_cc", "ldflags":
		return fieldArgList
	case "include_dirs", "lib_dirs", "response_file_contents":
		return fieldPathList
	case "inputs", "sources", "outputs":
		return fieldGeneratedPathList
	case "output_patterns":
		return fieldOutputPatterns
	case "script":
		return fieldScript
	default:
		return fieldPassThrough
	}
}

// Options are the run-wide settings shared by every package.
type Options struct {
	// ResultBuildDir replaces package build dirs. Empty keeps them.
	ResultBuildDir string
	Conflicts      pathfix.ConflictMap
	IgnorableDirs  []string
}

// GnTargets fixes the targets of one package.
type GnTargets struct {
	targets Targets
	pkg     *packages.Package
	handler *pathfix.Handler
	opts    Options
}

// New prepares the targets of pkg for fixing.
func New(targets Targets, pkg *packages.Package, h *pathfix.Handler, opts Options) *GnTargets {
	return &GnTargets{targets: targets, pkg: pkg, handler: h, opts: opts}
}

// Fix returns a fixed copy of the targets. Fields without path semantics are
// copied unchanged.
func (g *GnTargets) Fix(ctx context.Context) (Targets, error) {
	out := make(Targets, len(g.targets))
	for label, fields := range g.targets {
		fixed := make(map[string]any, len(fields))
		for field, value := range fields {
			v, err := g.fixField(ctx, field, value)
			if err != nil {
				return nil, targetError(g.pkg.Name, label, field, err)
			}
			fixed[field] = v
		}
		out[label] = fixed
	}
	return out, nil
}

func (g *GnTargets) fixField(ctx context.Context, field string, value any) (any, error) {
	kind := kindOf(field)
	switch kind {
	case fieldPassThrough:
		return value, nil
	case fieldScript:
		script, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		return g.fixScript(ctx, script)
	}

	list, err := stringList(value)
	if err != nil {
		return nil, err
	}
	var fixed []string
	switch kind {
	case fieldArgList:
		fixed, err = g.fixArgList(list)
	case fieldPathList:
		fixed, err = g.fixPathList(list, false)
	case fieldGeneratedPathList:
		fixed, err = g.fixPathList(list, true)
	case fieldOutputPatterns:
		fixed, err = g.fixOutputPatterns(list)
	}
	if err != nil {
		return nil, err
	}
	return toAny(fixed), nil
}

// fixScript requires the script to exist and, unless the package is highly
// volatile, to match its checkout byte for byte.
func (g *GnTargets) fixScript(ctx context.Context, script string) (string, error) {
	fp, err := g.handler.FixPath(script, g.pkg, g.opts.Conflicts)
	if err != nil {
		return "", err
	}
	fp = pathfix.Relocate(fp, g.pkg, g.opts.ResultBuildDir)
	if fp.Original == fp.Actual || !fsutil.IsRegular(fp.Original) || !fsutil.IsRegular(fp.Actual) {
		return fp.Actual, nil
	}

	same, err := g.handler.SameContent(fp.Original, fp.Actual)
	if err != nil {
		return "", err
	}
	if !same {
		if !g.pkg.IsHighlyVolatile {
			return "", packages.NewPathError(packages.KindTarget, g.pkg.Name,
				"Temp and actual scripts differ", fp.Original, fp.Actual)
		}
		slog.Debug("Temp and actual scripts differ, possibly patched",
			logfields.Package(g.pkg.Name), logfields.Original(fp.Original), logfields.Actual(fp.Actual))
		pathfix.LogDrift(ctx, g.pkg.Name, "script", fp.Original, fp.Actual)
	}
	return fp.Actual, nil
}

// fixArgList fixes every ","- and ":"-separated piece of each argument.
func (g *GnTargets) fixArgList(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		subargs := strings.Split(arg, ",")
		for i, subarg := range subargs {
			pieces := strings.Split(subarg, ":")
			for j, piece := range pieces {
				prefix, path, err := pathfix.FixPathInArgument(piece, func(p string) (string, error) {
					return g.fixPath(p, true)
				})
				if err != nil {
					return nil, err
				}
				pieces[j] = prefix + path
			}
			subargs[i] = strings.Join(pieces, ":")
		}
		out = append(out, strings.Join(subargs, ","))
	}
	return out, nil
}

func (g *GnTargets) fixPathList(paths []string, generated bool) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !isPathLike(p) {
			out = append(out, p)
			continue
		}
		fixed, err := g.fixPath(p, generated)
		if err != nil {
			return nil, err
		}
		out = append(out, fixed)
	}
	return out, nil
}

// fixOutputPatterns fixes the directory of each pattern and keeps the
// pattern's file name literally.
func (g *GnTargets) fixOutputPatterns(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		dir, name := pathDir(pattern), filepath.Base(pattern)
		if !isPathLike(dir) {
			out = append(out, pattern)
			continue
		}
		fixed, err := g.fixPath(dir, true)
		if err != nil {
			return nil, err
		}
		out = append(out, filepath.Join(fixed, name))
	}
	return out, nil
}

func (g *GnTargets) fixPath(p string, generated bool) (string, error) {
	res, err := g.handler.FixPathWithIgnores(p, g.pkg, pathfix.Options{
		Conflicts:            g.opts.Conflicts,
		IgnoreGenerated:      generated,
		IgnoreHighlyVolatile: true,
		IgnorableDirs:        g.opts.IgnorableDirs,
		IgnorableExtensions:  IgnorableExtensions,
		ResultBuildDir:       g.opts.ResultBuildDir,
	})
	if err != nil {
		return "", err
	}
	return res.Actual, nil
}

// pathDir is filepath.Dir that keeps the "//" source root marker.
func pathDir(p string) string {
	i := strings.LastIndex(p, "/")
	switch {
	case i < 0:
		return ""
	case strings.HasPrefix(p, "//") && i < 2:
		return "//"
	case i == 0:
		return "/"
	}
	return p[:i]
}

func isPathLike(p string) bool {
	return strings.Contains(p, "/") && !strings.HasPrefix(p, "$") && !strings.HasPrefix(p, "{")
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, got %T element", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func toAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

func targetError(pkgName, label, field string, err error) error {
	message := fmt.Sprintf("Failed to fix '%s' of '%s'", field, label)
	var pe *packages.PathError
	if errors.As(err, &pe) {
		return pe.Wrap(packages.KindTarget, message)
	}
	e := packages.NewPathError(packages.KindTarget, pkgName, message)
	e.Err = err
	return e
}
