package pathfix

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
)

// Options controls which misses FixPathWithIgnores tolerates.
type Options struct {
	Conflicts ConflictMap
	// IgnoreGenerated accepts any path inside the package's build dir
	// without checking that it exists.
	IgnoreGenerated bool
	// IgnoreHighlyVolatile tolerates misses in packages whose sources are
	// patched during the build.
	IgnoreHighlyVolatile bool
	// IgnorableDirs are host directories whose contents may be missing.
	IgnorableDirs []string
	// IgnorableExtensions are suffixes of files that may be missing.
	IgnorableExtensions []string
	// ResultBuildDir, when set, receives every path that resolves into the
	// package's build dir.
	ResultBuildDir string
}

// Outcome tells how a Resolution was reached.
type Outcome int

const (
	// Resolved paths were found directly.
	Resolved Outcome = iota
	// GeneratedMiss paths lie in the build dir and were accepted unchecked.
	GeneratedMiss
	// AncestorMiss paths were rebuilt from their closest fixable ancestor.
	AncestorMiss
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case GeneratedMiss:
		return "generated"
	case AncestorMiss:
		return "ancestor"
	default:
		return "unknown"
	}
}

// Resolution is a fixed path together with how it was obtained.
type Resolution struct {
	FixedPath
	Outcome Outcome
}

// FixPathWithIgnores resolves chrootPath like FixPath but tolerates the
// misses selected by opts. A tolerated miss is rebuilt from the closest
// ancestor directory that does resolve.
func (h *Handler) FixPathWithIgnores(chrootPath string, pkg *packages.Package, opts Options) (Resolution, error) {
	res, err := h.resolveWithIgnores(chrootPath, pkg, opts)
	if err != nil {
		return Resolution{}, err
	}
	res.FixedPath = Relocate(res.FixedPath, pkg, opts.ResultBuildDir)
	return res, nil
}

func (h *Handler) resolveWithIgnores(chrootPath string, pkg *packages.Package, opts Options) (Resolution, error) {
	fp, err := h.FixPath(chrootPath, pkg, opts.Conflicts)
	if err == nil {
		return Resolution{FixedPath: fp, Outcome: Resolved}, nil
	}
	var pe *packages.PathError
	if !errors.As(err, &pe) || pe.Kind != packages.KindNotFixed {
		return Resolution{}, err
	}

	m := h.classifyMiss(chrootPath, pkg, opts)
	switch m.kind {
	case missGenerated:
		slog.Debug("Accepting missing generated path", logfields.Package(pkg.Name), logfields.Path(m.path))
		return Resolution{FixedPath: FixedPath{Original: m.path, Actual: m.path}, Outcome: GeneratedMiss}, nil
	case missIgnorable:
		slog.Debug("Fixing missing path from its base dir",
			logfields.Package(pkg.Name), logfields.Path(m.path), logfields.Reason(m.reason))
		fp, walkErr := h.fixFromBaseDir(chrootPath, pkg, opts.Conflicts, m.ignorableDir)
		if walkErr != nil {
			return Resolution{}, walkErr
		}
		return Resolution{FixedPath: fp, Outcome: AncestorMiss}, nil
	default:
		return Resolution{}, err
	}
}

type missKind int

const (
	missFatal missKind = iota
	missGenerated
	missIgnorable
)

type miss struct {
	kind         missKind
	path         string
	ignorableDir string
	reason       string
}

func (h *Handler) classifyMiss(chrootPath string, pkg *packages.Package, opts Options) miss {
	path, err := h.hostPath(chrootPath, pkg)
	if err != nil {
		return miss{kind: missFatal}
	}
	if opts.IgnoreGenerated && fsutil.IsWithin(path, pkg.BuildDir) {
		return miss{kind: missGenerated, path: path}
	}

	// The outermost containing dir bounds the ancestor walk.
	var ignorableDir string
	for _, dir := range opts.IgnorableDirs {
		if fsutil.IsWithin(path, dir) && (ignorableDir == "" || len(dir) < len(ignorableDir)) {
			ignorableDir = dir
		}
	}
	switch {
	case ignorableDir != "":
		return miss{kind: missIgnorable, path: path, ignorableDir: ignorableDir, reason: "ignorable dir"}
	case opts.IgnoreHighlyVolatile && pkg.IsHighlyVolatile:
		return miss{kind: missIgnorable, path: path, reason: "highly volatile package"}
	case hasSuffix(path, opts.IgnorableExtensions):
		return miss{kind: missIgnorable, path: path, reason: "ignorable extension"}
	}
	return miss{kind: missFatal, path: path}
}

// hostPath is the host path chrootPath denotes before any temp-to-actual
// mapping, whether or not it exists.
func (h *Handler) hostPath(chrootPath string, pkg *packages.Package) (string, error) {
	if rest, ok := strings.CutPrefix(chrootPath, "//"); ok {
		if len(pkg.SrcDirMatches) == 0 {
			return "", errors.New("package has no source dirs")
		}
		return filepath.Join(pkg.SrcDirMatches[0].Temp, rest), nil
	}
	return h.NormalizePath(chrootPath, pkg.BuildDir)
}

// anchor returns chrootPath as an absolute chroot path.
func (h *Handler) anchor(chrootPath string, pkg *packages.Package) (string, error) {
	if strings.HasPrefix(chrootPath, "//") || !filepath.IsAbs(chrootPath) {
		host, err := h.hostPath(chrootPath, pkg)
		if err != nil {
			return "", err
		}
		return h.tr.ToChroot(host)
	}
	return filepath.Clean(chrootPath), nil
}

// fixFromBaseDir walks up from chrootPath, fixing the parent of the current
// path and appending the components walked past. The walk stays inside
// ignorableDir; without one only the direct parent is tried.
func (h *Handler) fixFromBaseDir(chrootPath string, pkg *packages.Package, conflicts ConflictMap, ignorableDir string) (FixedPath, error) {
	current, err := h.anchor(chrootPath, pkg)
	if err != nil {
		e := notFixed(pkg, "Failed to fix from base dir", chrootPath)
		e.Err = err
		return FixedPath{}, e
	}
	upper := current
	if ignorableDir != "" {
		if upper, err = h.tr.ToChroot(ignorableDir); err != nil {
			e := notFixed(pkg, "Failed to fix from base dir", chrootPath)
			e.Err = err
			return FixedPath{}, e
		}
	}

	baseDir := filepath.Dir(current)
	tail := filepath.Base(current)
	for fsutil.IsWithin(current, upper) {
		if fp, err := h.FixPath(baseDir, pkg, conflicts); err == nil {
			return FixedPath{
				Original: filepath.Join(fp.Original, tail),
				Actual:   filepath.Join(fp.Actual, tail),
			}, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
		tail = filepath.Join(filepath.Base(baseDir), tail)
		baseDir = filepath.Dir(baseDir)
	}
	return FixedPath{}, notFixed(pkg, "Failed to fix from base dir", chrootPath)
}

func hasSuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
