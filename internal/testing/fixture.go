package testing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/pkgindex/internal/chroot"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// DefaultBoard is the board used by fixtures.
const DefaultBoard = "amd64-generic"

// Fixture is a miniature checkout with a chroot and a board sysroot.
type Fixture struct {
	t          *testing.T
	CrosDir    string
	ChrootDir  string
	Board      string
	BoardDir   string
	SrcDir     string
	Translator *chroot.Translator
}

// NewFixture creates an empty checkout under t.TempDir().
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	f := &Fixture{
		t:         t,
		CrosDir:   filepath.Join(root, "cros"),
		ChrootDir: filepath.Join(root, "cros", "chroot"),
		Board:     DefaultBoard,
		SrcDir:    filepath.Join(root, "cros", "src"),
	}
	f.BoardDir = filepath.Join(f.ChrootDir, "build", f.Board)
	f.Translator = chroot.New(f.CrosDir, f.ChrootDir, chroot.DefaultSourceRoot)
	f.MkdirAll(f.BoardDir)
	f.MkdirAll(f.SrcDir)
	return f
}

// PackageLayout describes the directories created for one package.
type PackageLayout struct {
	Name       string
	SimpleName string
	// SrcDir is the durable checkout.
	SrcDir string
	// TempSrcDir is the copy unpacked into the work dir.
	TempSrcDir string
	// DestDir is TempSrcDir relative to the unpack base, as discovery reports it.
	DestDir  string
	TempDir  string
	BuildDir string
}

// AddPackage lays out work, build and source directories for name. Every
// entry of sources is written to both the durable and the temporary checkout.
func (f *Fixture) AddPackage(name string, sources map[string]string) PackageLayout {
	f.t.Helper()
	simple := name[strings.LastIndex(name, "/")+1:]
	l := PackageLayout{
		Name:       name,
		SimpleName: simple,
		SrcDir:     filepath.Join(f.SrcDir, "platform", simple),
		DestDir:    filepath.Join("platform", simple),
		TempDir:    filepath.Join(f.BoardDir, "tmp", "portage", name+"-9999", "work"),
		BuildDir:   filepath.Join(f.BoardDir, "var", "cache", "portage", name, "out", "Default"),
	}
	l.TempSrcDir = filepath.Join(l.TempDir, simple+"-9999", l.DestDir)

	f.MkdirAll(l.SrcDir)
	f.MkdirAll(l.TempSrcDir)
	f.WriteFile(filepath.Join(l.BuildDir, "args.gn"), "use_clang = true\n")
	for rel, content := range sources {
		f.WriteFile(filepath.Join(l.SrcDir, rel), content)
		f.WriteFile(filepath.Join(l.TempSrcDir, rel), content)
	}
	return l
}

// Descriptor returns what discovery would report for the package. deps name
// the packages it depends on.
func (l PackageLayout) Descriptor(deps ...string) packages.Descriptor {
	d := packages.Descriptor{
		Name:     l.Name,
		SrcDirs:  []string{l.SrcDir},
		DestDirs: []string{l.DestDir},
		Subtrees: []string{".gn", l.DestDir},
	}
	for _, dep := range deps {
		d.Deps = append(d.Deps, packages.Dependency{Name: dep, Types: []string{"buildtime"}})
	}
	return d
}

// Package creates and initializes the package described by l.
func (f *Fixture) Package(l PackageLayout, deps ...string) *packages.Package {
	f.t.Helper()
	p, err := packages.New(l.Descriptor(deps...), f.BoardDir)
	if err != nil {
		f.t.Fatalf("new package %s: %v", l.Name, err)
	}
	if err := p.Initialize(); err != nil {
		f.t.Fatalf("initialize %s: %v", l.Name, err)
	}
	return p
}

// ChrootPath converts a host path of the fixture to its chroot form.
func (f *Fixture) ChrootPath(host string) string {
	f.t.Helper()
	p, err := f.Translator.ToChroot(host)
	if err != nil {
		f.t.Fatalf("chroot path for %s: %v", host, err)
	}
	return p
}

// MkdirAll creates dir and its parents.
func (f *Fixture) MkdirAll(dir string) {
	f.t.Helper()
	if err := os.MkdirAll(dir, testDirPermissions); err != nil {
		f.t.Fatalf("mkdir %s: %v", dir, err)
	}
}

// WriteFile writes content to path, creating parent directories.
func (f *Fixture) WriteFile(path, content string) {
	f.t.Helper()
	f.MkdirAll(filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), testFilePermissions); err != nil {
		f.t.Fatalf("write %s: %v", path, err)
	}
}
