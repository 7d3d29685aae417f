// Package pathfix translates paths found in build metadata into the host
// paths that belong in merged output.
//
// Paths come in three flavours: chroot paths (valid inside the SDK chroot),
// source-root paths starting with "//" (relative to a package's unpacked
// sources) and paths relative to a package's build directory. Sources that a
// build unpacked into its temporary work directory are mapped back to the
// durable checkout they were copied from.
package pathfix

import (
	"fmt"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/pkgindex/internal/chroot"
	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// FixedPath pairs the host path a reference resolved to with the path that
// should be used in its place.
type FixedPath struct {
	Original string
	Actual   string
}

// ConflictMap maps build outputs that collided between packages to the
// renamed copy in the shared build directory.
type ConflictMap map[string]string

// Merge adds every entry of other to m.
func (m ConflictMap) Merge(other ConflictMap) {
	for k, v := range other {
		m[k] = v
	}
}

const contentCacheSize = 4096

// Handler resolves paths for packages. It is not safe for concurrent use.
type Handler struct {
	tr      *chroot.Translator
	content *lru.Cache[[2]string, bool]
}

// NewHandler returns a Handler translating chroot paths with tr.
func NewHandler(tr *chroot.Translator) *Handler {
	cache, err := lru.New[[2]string, bool](contentCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Handler{tr: tr, content: cache}
}

// Translator returns the chroot translator used by h.
func (h *Handler) Translator() *chroot.Translator { return h.tr }

// MovePath rebases path from fromDir onto toDir and resolves symlinks in the
// result.
func MovePath(path, fromDir, toDir string) (string, error) {
	moved, err := rebase(path, fromDir, toDir)
	if err != nil {
		return "", err
	}
	return fsutil.RealPath(moved), nil
}

func rebase(path, fromDir, toDir string) (string, error) {
	if !fsutil.IsWithin(path, fromDir) {
		return "", fmt.Errorf("path is not in dir: %s vs %s", path, fromDir)
	}
	rel, err := filepath.Rel(fromDir, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(toDir, rel), nil
}

// NormalizePath returns the host path for chrootPath. Relative paths are
// taken relative to baseDir, a host directory.
func (h *Handler) NormalizePath(chrootPath, baseDir string) (string, error) {
	if !filepath.IsAbs(chrootPath) {
		chrootBase, err := h.tr.ToChroot(baseDir)
		if err != nil {
			return "", err
		}
		chrootPath = filepath.Join(chrootBase, chrootPath)
	}
	return h.tr.FromChroot(chrootPath), nil
}

// FixPath resolves chrootPath for pkg. Paths inside the package's temporary
// sources are mapped to the durable checkout; paths listed in conflicts are
// replaced by their renamed copy; anything else is returned as it resolved.
// The result must exist.
func (h *Handler) FixPath(chrootPath string, pkg *packages.Package, conflicts ConflictMap) (FixedPath, error) {
	path, err := h.locate(chrootPath, pkg)
	if err != nil {
		return FixedPath{}, err
	}
	if path == "" || !fsutil.Exists(path) {
		return FixedPath{}, notFixed(pkg, "Given path does not exist", path, path)
	}

	actual, err := h.fix(path, pkg, conflicts)
	if err != nil {
		return FixedPath{}, err
	}
	actual = fsutil.RealPath(actual)
	if !fsutil.Exists(actual) {
		return FixedPath{}, notFixed(pkg, "Found path does not exist", path, actual)
	}
	return FixedPath{Original: path, Actual: actual}, nil
}

// locate turns chrootPath into a host path without mapping temp sources.
func (h *Handler) locate(chrootPath string, pkg *packages.Package) (string, error) {
	if rest, ok := strings.CutPrefix(chrootPath, "//"); ok {
		for _, m := range pkg.SrcDirMatches {
			attempt := filepath.Join(m.Temp, rest)
			if fsutil.Exists(attempt) {
				return attempt, nil
			}
		}
		return "", nil
	}
	path, err := h.NormalizePath(chrootPath, pkg.BuildDir)
	if err != nil {
		e := notFixed(pkg, "Cannot normalize path", chrootPath)
		e.Err = err
		return "", e
	}
	return path, nil
}

func (h *Handler) fix(path string, pkg *packages.Package, conflicts ConflictMap) (string, error) {
	if renamed, ok := conflicts[path]; ok {
		return renamed, nil
	}
	// The build dir may sit inside the temp dir; generated files stay put.
	if !fsutil.IsWithin(path, pkg.TempDir) || fsutil.IsWithin(path, pkg.BuildDir) {
		return path, nil
	}
	for _, m := range pkg.SrcDirMatches {
		if !fsutil.IsWithin(path, m.Temp) {
			continue
		}
		actual, err := MovePath(path, m.Temp, m.Actual)
		if err != nil {
			return "", err
		}
		if !fsutil.Exists(actual) {
			return "", notFixed(pkg, "Could not find path in matching source dir", path, actual)
		}
		return actual, nil
	}
	return "", notFixed(pkg, "Could not find path in any of source dirs", path)
}

// Relocate moves a fixed path that points into the package's build dir into
// resultBuildDir. Other paths, and every path when resultBuildDir is empty,
// are returned unchanged.
func Relocate(fp FixedPath, pkg *packages.Package, resultBuildDir string) FixedPath {
	if resultBuildDir == "" || !fsutil.IsWithin(fp.Actual, pkg.BuildDir) {
		return fp
	}
	moved, err := rebase(fp.Actual, pkg.BuildDir, resultBuildDir)
	if err != nil {
		return fp
	}
	fp.Actual = moved
	return fp
}

func notFixed(pkg *packages.Package, message string, candidates ...string) *packages.PathError {
	return packages.NewPathError(packages.KindNotFixed, pkg.Name, message, candidates...)
}
