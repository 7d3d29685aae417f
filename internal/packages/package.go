// Package packages models the per-package facts the path fixer needs: where
// a package was built, where its sources were unpacked for the build and
// which durable checkouts those sources came from.
package packages

import (
	"cmp"
	"log/slog"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// BuildConfigFile marks a GN build directory.
const BuildConfigFile = "args.gn"

var highlyVolatilePackages = []string{
	// libchrome applies a number of patches on top of its checkout.
	"chromeos-base/libchrome",
}

// DirMatch pairs a temporary checkout directory with the durable checkout it
// was copied from.
type DirMatch struct {
	Temp   string
	Actual string
}

// Package is a discovered package. Directory fields are valid after
// Initialize succeeds.
type Package struct {
	Name             string
	SimpleName       string
	IsHighlyVolatile bool
	Dependencies     []Dependency
	Descriptor       Descriptor

	TempDir                string
	BuildDir               string
	SrcDirMatches          []DirMatch
	AdditionalIncludePaths []string

	boardDir string
}

// New creates an uninitialized package living under boardDir.
func New(desc Descriptor, boardDir string) (*Package, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	p := &Package{
		Name:         desc.Name,
		SimpleName:   desc.SimpleName(),
		Dependencies: slices.Clone(desc.Deps),
		Descriptor:   desc,
		boardDir:     boardDir,
	}
	p.IsHighlyVolatile = desc.HighlyVolatile || slices.Contains(highlyVolatilePackages, desc.Name)
	if desc.Ebuild != "" && fsutil.IsDir(filepath.Join(filepath.Dir(desc.Ebuild), "files")) {
		p.IsHighlyVolatile = true
	}
	return p, nil
}

// Equal compares packages by name.
func (p *Package) Equal(other *Package) bool {
	return other != nil && p.Name == other.Name
}

// DependsOn reports whether name is a direct dependency of p.
func (p *Package) DependsOn(name string) bool {
	return slices.ContainsFunc(p.Dependencies, func(d Dependency) bool { return d.Name == name })
}

// Initialize finds the directories associated with the package and checks
// they exist. The package must have been built with its work directory kept.
func (p *Package) Initialize() error {
	slog.Debug("Initializing package", logfields.Package(p.Name))

	tempDir := filepath.Join(p.boardDir, "tmp", "portage", p.Name+"-9999", "work")
	if !fsutil.IsDir(tempDir) {
		return NewPathError(KindMissingDirectory, p.Name, "Cannot find temp dir", tempDir)
	}
	p.TempDir = tempDir

	buildDir, err := p.findBuildDir()
	if err != nil {
		return err
	}
	p.BuildDir = buildDir

	matches, err := p.matchSourceDirs()
	if err != nil {
		return err
	}
	p.SrcDirMatches = matches
	for _, m := range matches {
		slog.Debug("Matched temp and actual source dirs",
			logfields.Package(p.Name), logfields.Original(m.Temp), logfields.Actual(m.Actual))
	}

	p.AdditionalIncludePaths = p.additionalIncludePaths()
	for _, dir := range p.AdditionalIncludePaths {
		if !fsutil.IsDir(dir) {
			return NewPathError(KindMissingDirectory, p.Name, "Additional include path does not exist", dir)
		}
	}
	return nil
}

func (p *Package) findBuildDir() (string, error) {
	candidates := []string{
		filepath.Join(p.boardDir, "var", "cache", "portage", p.Name, "out", "Default"),
		filepath.Join(p.TempDir, "build", "out", "Default"),
	}
	for _, dir := range candidates {
		if !fsutil.IsDir(dir) {
			continue
		}
		if !fsutil.IsRegular(filepath.Join(dir, BuildConfigFile)) {
			return "", NewPathError(KindMissingDirectory, p.Name, "Build dir does not contain "+BuildConfigFile, dir)
		}
		return dir, nil
	}
	return "", NewPathError(KindMissingDirectory, p.Name, "Cannot find build dir")
}

func (p *Package) matchSourceDirs() ([]DirMatch, error) {
	srcDirs := p.Descriptor.SrcDirs
	if len(srcDirs) == 0 {
		return nil, NewPathError(KindMissingDirectory, p.Name, "Cannot find any src dirs")
	}
	for _, dir := range srcDirs {
		if !fsutil.IsDir(dir) {
			return nil, NewPathError(KindMissingDirectory, p.Name, "Cannot find src dir", dir)
		}
	}

	var tempDirs []string
	if p.Descriptor.OutOfTreeBuild {
		// Sources are used in place; nothing is unpacked into the work dir.
		tempDirs = srcDirs
	} else {
		base := filepath.Join(p.TempDir, p.SimpleName+"-9999")
		for _, dest := range p.Descriptor.DestDirs {
			if !filepath.IsAbs(dest) {
				dest = filepath.Join(base, dest)
			}
			tempDirs = append(tempDirs, filepath.Clean(dest))
		}
	}
	if len(tempDirs) == 0 {
		return nil, NewPathError(KindMissingDirectory, p.Name, "Cannot find any temp src dirs")
	}
	for _, dir := range tempDirs {
		if !fsutil.IsDir(dir) {
			return nil, NewPathError(KindMissingDirectory, p.Name, "Cannot find temp src dir", dir)
		}
	}
	if len(srcDirs) != len(tempDirs) {
		return nil, NewPathError(KindMissingDirectory, p.Name, "Different number of src and temp src dirs")
	}

	matches := make([]DirMatch, len(srcDirs))
	for i := range srcDirs {
		matches[i] = DirMatch{Temp: filepath.Clean(tempDirs[i]), Actual: filepath.Clean(srcDirs[i])}
	}
	// Most specific first so that prefix matching picks the deepest pair.
	slices.SortStableFunc(matches, func(a, b DirMatch) int {
		if c := cmp.Compare(len(b.Temp), len(a.Temp)); c != 0 {
			return c
		}
		return cmp.Compare(len(b.Actual), len(a.Actual))
	})
	return matches, nil
}

func (p *Package) additionalIncludePaths() []string {
	// update_engine pretends to live in platform2 and includes its headers
	// relative to the parent of its checkout.
	if p.Name == "chromeos-base/update_engine" && len(p.SrcDirMatches) > 0 {
		return []string{filepath.Dir(p.SrcDirMatches[0].Actual)}
	}
	return nil
}
