// Package buildmerge copies the build directories of many packages into one
// shared result build directory.
package buildmerge

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/packages"
	"git.home.luguber.info/inful/pkgindex/internal/pathfix"
)

// IgnoredExtensions are ninja bookkeeping files that mean nothing once
// several build dirs are merged.
var IgnoredExtensions = []string{".ninja", ".ninja_deps", ".ninja_log", ".stamp"}

// Merger accumulates package build dirs into ResultDir.
type Merger struct {
	resultDir string
	conflicts pathfix.ConflictMap
	copied    int
	// owners maps every destination written by this Merger to the package
	// that wrote it. Files in the result dir that are not listed are left
	// over from an earlier run and get replaced.
	owners map[string]string
}

// New returns a Merger writing into resultDir.
func New(resultDir string) *Merger {
	return &Merger{resultDir: resultDir, conflicts: pathfix.ConflictMap{}, owners: map[string]string{}}
}

// ResultDir is the shared build directory.
func (m *Merger) ResultDir() string { return m.resultDir }

// Conflicts returns every rename made so far, keyed by the file in the
// package build dir.
func (m *Merger) Conflicts() pathfix.ConflictMap { return m.conflicts }

// Copied is the number of files written so far.
func (m *Merger) Copied() int { return m.copied }

// Append copies every regular file of pkg's build dir into the result dir.
// A file whose destination was already written by another package with
// different content is copied as "{simpleName}_{base}" next to it instead,
// or as "{category}_{simpleName}_{base}" when that name is taken as well.
// Destinations not written by this Merger are overwritten. The renames made
// for pkg are returned.
func (m *Merger) Append(pkg *packages.Package) (pathfix.ConflictMap, error) {
	slog.Debug("Merging build dir", logfields.Package(pkg.Name), logfields.Path(pkg.BuildDir))
	delta := pathfix.ConflictMap{}

	err := filepath.WalkDir(pkg.BuildDir, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if slices.Contains(IgnoredExtensions, filepath.Ext(src)) {
			return nil
		}
		rel, err := filepath.Rel(pkg.BuildDir, src)
		if err != nil {
			return err
		}
		renamed, err := m.copy(pkg, src, filepath.Join(m.resultDir, rel))
		if err != nil {
			return err
		}
		if renamed != "" {
			delta[src] = renamed
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge build dir of %s: %w", pkg.Name, err)
	}

	m.conflicts.Merge(delta)
	if len(delta) > 0 {
		slog.Info("Renamed conflicting build outputs", logfields.Package(pkg.Name), logfields.Count(len(delta)))
	}
	return delta, nil
}

// copy places src at dst, or at a renamed sibling when an earlier package of
// this run put different content at dst. The returned path is the renamed
// destination, if one was used.
func (m *Merger) copy(pkg *packages.Package, src, dst string) (string, error) {
	if _, ours := m.owners[dst]; !ours {
		return "", m.place(pkg, src, dst)
	}
	same, err := fsutil.SameContent(src, dst)
	if err != nil {
		return "", err
	}
	if same {
		return "", nil
	}

	renamed := filepath.Join(filepath.Dir(dst), pkg.SimpleName+"_"+filepath.Base(dst))
	if owner, ok := m.owners[renamed]; ok && owner != pkg.Name {
		// Same simple name in another category.
		renamed = filepath.Join(filepath.Dir(dst), strings.ReplaceAll(pkg.Name, "/", "_")+"_"+filepath.Base(dst))
	}
	slog.Debug("Build output conflicts with an earlier package",
		logfields.Package(pkg.Name), logfields.Original(dst), logfields.Actual(renamed))
	return renamed, m.place(pkg, src, renamed)
}

// place writes src to dst for pkg unless dst already holds the same bytes.
func (m *Merger) place(pkg *packages.Package, src, dst string) error {
	m.owners[dst] = pkg.Name
	if fsutil.Exists(dst) {
		same, err := fsutil.SameContent(src, dst)
		if err != nil {
			return err
		}
		if same {
			return nil
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	m.copied++
	return fsutil.CopyFile(src, dst)
}
