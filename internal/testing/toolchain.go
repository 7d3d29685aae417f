package testing

import (
	"context"
	"errors"
	"fmt"

	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// ErrNoDump is returned by StaticToolchain for packages it holds nothing for.
var ErrNoDump = errors.New("no dump for package")

// StaticToolchain serves canned dumps keyed by package name.
type StaticToolchain struct {
	Compile map[string][]byte
	Gn      map[string][]byte
}

// CompileCommands returns the canned compilation database of pkg.
func (s StaticToolchain) CompileCommands(_ context.Context, pkg *packages.Package) ([]byte, error) {
	if data, ok := s.Compile[pkg.Name]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: compile commands: %w", pkg.Name, ErrNoDump)
}

// GnTargets returns the canned target description of pkg.
func (s StaticToolchain) GnTargets(_ context.Context, pkg *packages.Package, _ string) ([]byte, error) {
	if data, ok := s.Gn[pkg.Name]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: gn targets: %w", pkg.Name, ErrNoDump)
}
