package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgindex/internal/chroot"
	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/retry"
)

func TestDumpReadsFromBuildDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compile_commands.json"), []byte(`[]`), 0o600))
	pkg := &packages.Package{Name: "chromeos-base/foo", BuildDir: dir}

	d := Dump{CompileCommandsFile: "compile_commands.json", GnTargetsFile: "gn.json"}
	data, err := d.CompileCommands(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = d.GnTargets(context.Background(), pkg, dir)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryToolchain, ferrors.GetCategory(err))
}

func TestSDKFailureIsToolchainError(t *testing.T) {
	root := t.TempDir()
	tr := chrootFor(root)
	pkg := &packages.Package{Name: "a/b", BuildDir: filepath.Join(tr.ChrootDir, "build", "out")}

	s := NewSDK(filepath.Join(root, "missing-cros-sdk"), tr)
	_, err := s.CompileCommands(context.Background(), pkg)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryToolchain, ferrors.GetCategory(err))
}

func TestSDKRetriesFailedInvocation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script as cros_sdk")
	}
	root := t.TempDir()
	tr := chrootFor(root)
	pkg := &packages.Package{Name: "a/b", BuildDir: filepath.Join(tr.ChrootDir, "build", "out")}

	// Fails on the first call only.
	script := filepath.Join(root, "cros_sdk")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
if [ ! -f "$0.ran" ]; then touch "$0.ran"; echo "chroot busy" >&2; exit 1; fi
echo '[]'
`), 0o700))

	_, err := NewSDK(script, tr).CompileCommands(context.Background(), pkg)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryToolchain, ferrors.GetCategory(err))
	require.NoError(t, os.Remove(script+".ran"))

	s := NewSDK(script, tr).WithRetry(retry.NewPolicy(retry.Fixed, time.Millisecond, time.Millisecond, 1))
	data, err := s.CompileCommands(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func chrootFor(root string) *chroot.Translator {
	return chroot.New(root, filepath.Join(root, "chroot"), chroot.DefaultSourceRoot)
}
