// Package toolchain produces the build metadata dumps that are fixed and
// merged: a ninja compilation database and a "gn desc" target description
// per package.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/chroot"
	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/retry"
)

// Toolchain returns raw dumps for a package.
type Toolchain interface {
	CompileCommands(ctx context.Context, pkg *packages.Package) ([]byte, error)
	// GnTargets describes every target of pkg. rootDir is the host directory
	// holding the package's .gn file.
	GnTargets(ctx context.Context, pkg *packages.Package, rootDir string) ([]byte, error)
}

// SDK runs ninja and gn inside the chroot through the cros_sdk wrapper.
type SDK struct {
	// Binary is the cros_sdk executable.
	Binary string
	// Dir is the working directory for cros_sdk, normally the checkout root.
	Dir string
	// Retry re-runs failed invocations, for instance while another cros_sdk
	// holds the chroot lock.
	Retry retry.Policy
	tr    *chroot.Translator
}

// NewSDK returns an SDK toolchain. An empty binary means "cros_sdk".
func NewSDK(binary string, tr *chroot.Translator) *SDK {
	if binary == "" {
		binary = "cros_sdk"
	}
	return &SDK{Binary: binary, Dir: tr.CrosDir, Retry: retry.NewPolicy("", 0, 0, 0), tr: tr}
}

// WithRetry sets the policy for failed invocations.
func (s *SDK) WithRetry(p retry.Policy) *SDK {
	s.Retry = p
	return s
}

// CompileCommands runs "ninja -t compdb" in the package build dir.
func (s *SDK) CompileCommands(ctx context.Context, pkg *packages.Package) ([]byte, error) {
	buildDir, err := s.tr.ToChroot(pkg.BuildDir)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "ninja", "-C", buildDir, "-t", "compdb", "cc", "cxx")
}

// GnTargets runs "gn desc" over all targets of the package build dir.
func (s *SDK) GnTargets(ctx context.Context, pkg *packages.Package, rootDir string) ([]byte, error) {
	buildDir, err := s.tr.ToChroot(pkg.BuildDir)
	if err != nil {
		return nil, err
	}
	root, err := s.tr.ToChroot(rootDir)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "gn", "desc", buildDir, "*", "--root="+root, "--format=json")
}

func (s *SDK) run(ctx context.Context, args ...string) ([]byte, error) {
	var out []byte
	err := s.Retry.Do(ctx, func() error {
		var err error
		out, err = s.invoke(ctx, args)
		return err
	}, func(n int, delay time.Duration, err error) {
		slog.Warn("cros_sdk invocation failed, retrying",
			slog.String("command", args[0]),
			slog.Int("retry", n),
			logfields.DurationMS(float64(delay.Milliseconds())),
			logfields.Error(err))
	})
	return out, err
}

func (s *SDK) invoke(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 -- binary comes from configuration, arguments are controlled paths
	cmd := exec.CommandContext(ctx, s.Binary, append([]string{"--"}, args...)...)
	cmd.Dir = s.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryToolchain, fmt.Sprintf("%s failed", args[0])).
			WithContext("stderr", stderr.String()).
			Build()
	}
	return out, nil
}

// Dump reads dumps that were produced ahead of time and stored in each
// package's build dir.
type Dump struct {
	CompileCommandsFile string
	GnTargetsFile       string
}

// CompileCommands reads the compilation database of pkg.
func (d Dump) CompileCommands(_ context.Context, pkg *packages.Package) ([]byte, error) {
	return readDump(pkg, d.CompileCommandsFile)
}

// GnTargets reads the target description of pkg.
func (d Dump) GnTargets(_ context.Context, pkg *packages.Package, _ string) ([]byte, error) {
	return readDump(pkg, d.GnTargetsFile)
}

func readDump(pkg *packages.Package, name string) ([]byte, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(pkg.BuildDir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryToolchain, "cannot read dump").
			WithContext("package", pkg.Name).
			WithContext("path", path).
			Build()
	}
	return data, nil
}
