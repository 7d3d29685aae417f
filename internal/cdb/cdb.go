// Package cdb fixes the compilation databases of individual packages so that
// every path in them points at host checkouts and the shared result build
// directory, and concatenates them into one database.
package cdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
	"git.home.luguber.info/inful/pkgindex/internal/util/sets"
)

// ExtraArgs are appended to every fixed command.
var ExtraArgs = []string{"-stdlib=libc++"}

// Entry is one compilation database record.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// IncludePathOrder holds "-I" flags by where they point: the source
// checkout, the result build dir or the chroot. A flag is in one set only.
type IncludePathOrder struct {
	Local     sets.Set[string]
	Generated sets.Set[string]
	Chroot    sets.Set[string]
}

// NewIncludePathOrder returns empty sets.
func NewIncludePathOrder() *IncludePathOrder {
	return &IncludePathOrder{Local: sets.New[string](), Generated: sets.New[string](), Chroot: sets.New[string]()}
}

// Flags returns the flags ordered local, generated, chroot; each group sorted.
func (o *IncludePathOrder) Flags() []string {
	var out []string
	out = append(out, sets.Sorted(o.Local)...)
	out = append(out, sets.Sorted(o.Generated)...)
	return append(out, sets.Sorted(o.Chroot)...)
}

// IncludeIndex records, per package name, the include flags its dependents
// inherit.
type IncludeIndex map[string]*IncludePathOrder

// Options are the run-wide settings shared by every package.
type Options struct {
	// ResultBuildDir replaces package build dirs. Empty keeps them.
	ResultBuildDir string
	Conflicts      pathfix.ConflictMap
	// SrcDir is the host checkout root; include dirs under it are local.
	SrcDir        string
	IgnorableDirs []string
}

// Cdb fixes the entries of one package.
type Cdb struct {
	entries   []Entry
	pkg       *packages.Package
	handler   *pathfix.Handler
	opts      Options
	buildDir  string
	inherited *IncludePathOrder
	own       *IncludePathOrder
}

// New prepares the entries of pkg for fixing. Every dependency of pkg must
// already have include flags recorded in includes; the flags pkg records for
// its own dependents are stored there as entries are fixed.
func New(entries []Entry, pkg *packages.Package, h *pathfix.Handler, opts Options, includes IncludeIndex) (*Cdb, error) {
	inherited := NewIncludePathOrder()
	for _, dep := range pkg.Dependencies {
		order, ok := includes[dep.Name]
		if !ok {
			return nil, ferrors.NewError(ferrors.CategoryGraph, "no include paths for dependency").
				WithContext("package", pkg.Name).
				WithContext("dependency", dep.Name).
				Build()
		}
		inherited.Local.Union(order.Local)
		inherited.Generated.Union(order.Generated)
	}

	own := NewIncludePathOrder()
	own.Local.Union(inherited.Local)
	own.Generated.Union(inherited.Generated)
	includes[pkg.Name] = own

	buildDir := opts.ResultBuildDir
	if buildDir == "" {
		buildDir = pkg.BuildDir
	}
	return &Cdb{
		entries:   entries,
		pkg:       pkg,
		handler:   h,
		opts:      opts,
		buildDir:  buildDir,
		inherited: inherited,
		own:       own,
	}, nil
}

// Fix returns the fixed entries. Each has a command and no arguments.
func (c *Cdb) Fix(ctx context.Context) ([]Entry, error) {
	if c.pkg.IsHighlyVolatile {
		slog.Debug("Highly volatile package, file content is not verified", logfields.Package(c.pkg.Name))
	}
	for _, dir := range c.pkg.AdditionalIncludePaths {
		slog.Debug("Using additional include path", logfields.Package(c.pkg.Name), logfields.Path(dir))
	}

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		fixed, err := c.fixEntry(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, fixed)
	}
	return out, nil
}

func (c *Cdb) fixEntry(ctx context.Context, e Entry) (Entry, error) {
	dir, err := c.fixDirectory(e.Directory)
	if err != nil {
		return Entry{}, err
	}
	file, err := c.fixFile(ctx, e.File)
	if err != nil {
		return Entry{}, err
	}
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return Entry{}, packages.NewPathError(packages.KindFile, c.pkg.Name, "File is not relative to build dir", file, dir)
	}
	args, err := c.fixArguments(e)
	if err != nil {
		return Entry{}, err
	}

	fixed := Entry{Directory: dir, File: rel, Command: strings.Join(args, " ")}
	if e.Output != "" {
		res, err := c.handler.FixPathWithIgnores(e.Output, c.pkg, c.generatedOptions())
		if err != nil {
			return Entry{}, fieldError(packages.KindOutput, c.pkg.Name, "Failed to fix output field", err)
		}
		fixed.Output = res.Actual
	}
	return fixed, nil
}

func (c *Cdb) fixDirectory(dir string) (string, error) {
	host := c.handler.Translator().FromChroot(dir)
	if host != c.pkg.BuildDir {
		return "", packages.NewPathError(packages.KindDirectory, c.pkg.Name,
			"Directory field does not match build dir", host, c.pkg.BuildDir)
	}
	return c.buildDir, nil
}

func (c *Cdb) fixFile(ctx context.Context, file string) (string, error) {
	res, err := c.handler.FixPathWithIgnores(file, c.pkg, c.generatedOptions())
	if err != nil {
		return "", fieldError(packages.KindFile, c.pkg.Name, "Failed to fix file field", err)
	}
	if res.Original == res.Actual {
		return res.Actual, nil
	}
	if !fsutil.IsRegular(res.Original) || !fsutil.IsRegular(res.Actual) {
		slog.Debug("Cannot verify temp and actual file are the same",
			logfields.Package(c.pkg.Name), logfields.Original(res.Original), logfields.Actual(res.Actual))
		return res.Actual, nil
	}
	same, err := c.handler.SameContent(res.Original, res.Actual)
	if err != nil {
		return "", fieldError(packages.KindFile, c.pkg.Name, "Cannot compare temp and actual file", err)
	}
	if !same {
		if !c.pkg.IsHighlyVolatile {
			return "", packages.NewPathError(packages.KindFile, c.pkg.Name,
				"Temp and actual file differ", res.Original, res.Actual)
		}
		slog.Debug("Temp and actual files differ, possibly patched",
			logfields.Package(c.pkg.Name), logfields.Original(res.Original), logfields.Actual(res.Actual))
		pathfix.LogDrift(ctx, c.pkg.Name, "file", res.Original, res.Actual)
	}
	return res.Actual, nil
}

func (c *Cdb) fixArguments(e Entry) ([]string, error) {
	args := e.Arguments
	if len(args) == 0 {
		args = strings.Fields(e.Command)
	}
	if len(args) == 0 {
		return nil, packages.NewPathError(packages.KindArgument, c.pkg.Name, "Entry has no command", e.File)
	}

	compiler, err := normalizeCompiler(c.pkg.Name, args[0])
	if err != nil {
		return nil, err
	}
	fixed := []string{compiler}
	includes := NewIncludePathOrder()

	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if strings.HasPrefix(arg, "-I") {
			path := arg[len("-I"):]
			if path == "" && i+1 < len(rest) {
				i++
				path = rest[i]
			}
			if err := c.addInclude(includes, path); err != nil {
				return nil, err
			}
			continue
		}

		prefix, path, err := pathfix.FixPathInArgument(arg, c.fixArgumentPath)
		if err != nil {
			return nil, fieldError(packages.KindArgument, c.pkg.Name, "Failed to fix argument", err)
		}
		fixed = append(fixed, prefix+path)
	}

	for _, dir := range c.pkg.AdditionalIncludePaths {
		includes.Local.Add("-I" + dir)
	}
	c.own.Local.Union(includes.Local)
	c.own.Generated.Union(includes.Generated)

	includes.Local.Union(c.inherited.Local)
	includes.Generated.Union(c.inherited.Generated)

	fixed = append(fixed, ExtraArgs...)
	return append(fixed, includes.Flags()...), nil
}

// addInclude fixes an include dir without tolerating misses and files it by
// location. The build dir may lie inside the source checkout, so it is
// checked first.
func (c *Cdb) addInclude(o *IncludePathOrder, path string) error {
	res, err := c.handler.FixPathWithIgnores(path, c.pkg, pathfix.Options{
		Conflicts:      c.opts.Conflicts,
		ResultBuildDir: c.opts.ResultBuildDir,
	})
	if err != nil {
		return fieldError(packages.KindArgument, c.pkg.Name, "Failed to fix include path", err)
	}

	flag := "-I" + res.Actual
	switch {
	case fsutil.IsWithin(res.Actual, c.buildDir):
		o.Generated.Add(flag)
	case fsutil.IsWithin(res.Actual, c.opts.SrcDir):
		o.Local.Add(flag)
	case fsutil.IsWithin(res.Actual, c.handler.Translator().ChrootDir):
		o.Chroot.Add(flag)
	default:
		return packages.NewPathError(packages.KindArgument, c.pkg.Name, "Unexpected include path", res.Actual)
	}
	return nil
}

func (c *Cdb) fixArgumentPath(path string) (string, error) {
	opts := c.generatedOptions()
	opts.IgnorableDirs = c.opts.IgnorableDirs
	res, err := c.handler.FixPathWithIgnores(path, c.pkg, opts)
	if err != nil {
		return "", err
	}
	return res.Actual, nil
}

func (c *Cdb) generatedOptions() pathfix.Options {
	return pathfix.Options{
		Conflicts:            c.opts.Conflicts,
		IgnoreGenerated:      true,
		IgnoreHighlyVolatile: true,
		ResultBuildDir:       c.opts.ResultBuildDir,
	}
}

// CompilerError reports a compiler that is neither clang nor clang++.
type CompilerError struct {
	Package  string
	Compiler string
}

func (e *CompilerError) Error() string {
	return fmt.Sprintf("%s: unknown compiler: '%s'", e.Package, e.Compiler)
}

// Category classifies the error as a path argument failure.
func (e *CompilerError) Category() ferrors.ErrorCategory { return ferrors.CategoryPath }

// Unwrap exposes the error as an argument PathError.
func (e *CompilerError) Unwrap() error {
	return packages.NewPathError(packages.KindArgument, e.Package, "Unknown compiler", e.Compiler)
}

func normalizeCompiler(pkgName, compiler string) (string, error) {
	switch {
	case strings.HasSuffix(compiler, "clang++"):
		return "clang++", nil
	case strings.HasSuffix(compiler, "clang"):
		return "clang", nil
	default:
		return "", &CompilerError{Package: pkgName, Compiler: compiler}
	}
}

// fieldError attributes a path failure to the metadata field it came from.
func fieldError(kind packages.PathErrorKind, pkgName, message string, err error) error {
	var pe *packages.PathError
	if errors.As(err, &pe) {
		return pe.Wrap(kind, message)
	}
	e := packages.NewPathError(kind, pkgName, message)
	e.Err = err
	return e
}
