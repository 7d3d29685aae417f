package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManager_Prepare(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "out")
	mgr := NewManager(out, filepath.Join(out, "out", "Default"), false)

	if err := mgr.Prepare(); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if fi, err := os.Stat(mgr.BuildDir()); err != nil || !fi.IsDir() {
		t.Fatalf("build dir not created: %v", err)
	}

	stale := filepath.Join(mgr.BuildDir(), "stale.so")
	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Prepare(); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Errorf("Prepare without clean must keep build dir contents: %v", err)
	}
}

func TestManager_PrepareClean(t *testing.T) {
	out := t.TempDir()
	buildDir := filepath.Join(out, "build")
	if err := os.MkdirAll(buildDir, 0o750); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(buildDir, "stale.so")
	if err := os.WriteFile(stale, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	mgr := NewManager(out, buildDir, true)
	if err := mgr.Prepare(); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale file to be removed, stat err=%v", err)
	}
	if _, err := os.Stat(buildDir); err != nil {
		t.Errorf("expected build dir to be recreated: %v", err)
	}
}

func TestManager_PrepareCleanRefusesOutputDir(t *testing.T) {
	out := t.TempDir()
	mgr := NewManager(out, out, true)
	if err := mgr.Prepare(); err == nil {
		t.Fatal("expected error when the build dir is the output dir")
	}
}

func TestManager_WriteFile(t *testing.T) {
	out := t.TempDir()
	mgr := NewManager(out, filepath.Join(out, "build"), false)

	path, err := mgr.WriteFile("compile_commands.json", []byte("[]\n"))
	if err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if path != filepath.Join(out, "compile_commands.json") {
		t.Errorf("unexpected path %s", path)
	}

	if _, err := mgr.WriteFile("compile_commands.json", []byte("[{}]\n")); err != nil {
		t.Fatalf("WriteFile() overwrite failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[{}]\n" {
		t.Errorf("unexpected content %q", data)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp files to be gone, found %d entries", len(entries))
	}

	abs := filepath.Join(t.TempDir(), "nested", "targets.json")
	got, err := mgr.WriteFile(abs, []byte("{}"))
	if err != nil {
		t.Fatalf("WriteFile() absolute failed: %v", err)
	}
	if got != abs {
		t.Errorf("expected %s, got %s", abs, got)
	}
}
