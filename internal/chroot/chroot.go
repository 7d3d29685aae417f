// Package chroot translates between paths as seen inside the SDK chroot and
// the corresponding host paths.
package chroot

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pkgindex/internal/fsutil"
)

// DefaultSourceRoot is where the checkout is mounted inside the chroot.
const DefaultSourceRoot = "/mnt/host/source"

// Translator maps chroot paths to host paths and back.
type Translator struct {
	// CrosDir is the host checkout root.
	CrosDir string
	// ChrootDir is the host directory holding the chroot file system.
	ChrootDir string
	// SourceRoot is the chroot mount point of CrosDir.
	SourceRoot string
}

// New returns a Translator. An empty chrootDir defaults to {crosDir}/chroot
// and an empty sourceRoot to DefaultSourceRoot.
func New(crosDir, chrootDir, sourceRoot string) *Translator {
	if chrootDir == "" {
		chrootDir = filepath.Join(crosDir, "chroot")
	}
	if sourceRoot == "" {
		sourceRoot = DefaultSourceRoot
	}
	return &Translator{
		CrosDir:    filepath.Clean(crosDir),
		ChrootDir:  filepath.Clean(chrootDir),
		SourceRoot: filepath.Clean(sourceRoot),
	}
}

// IsHostPath reports whether p already names a host location managed by the
// translator.
func (t *Translator) IsHostPath(p string) bool {
	return fsutil.IsWithin(p, t.ChrootDir) || fsutil.IsWithin(p, t.CrosDir)
}

// FromChroot returns the host path for an absolute chroot path. Host paths
// are returned cleaned, which keeps the translation idempotent.
func (t *Translator) FromChroot(p string) string {
	p = filepath.Clean(p)
	switch {
	case t.IsHostPath(p):
		return p
	case fsutil.IsWithin(p, t.SourceRoot):
		return filepath.Join(t.CrosDir, strings.TrimPrefix(p, t.SourceRoot))
	default:
		return filepath.Join(t.ChrootDir, p)
	}
}

// ToChroot returns the chroot path for a host path.
func (t *Translator) ToChroot(p string) (string, error) {
	p = filepath.Clean(p)
	// ChrootDir usually lives inside CrosDir, so it is checked first.
	if fsutil.IsWithin(p, t.ChrootDir) {
		rel := strings.TrimPrefix(p, t.ChrootDir)
		if rel == "" {
			return "/", nil
		}
		return rel, nil
	}
	if fsutil.IsWithin(p, t.CrosDir) {
		return filepath.Join(t.SourceRoot, strings.TrimPrefix(p, t.CrosDir)), nil
	}
	return "", fmt.Errorf("path %s is neither inside %s nor %s", p, t.ChrootDir, t.CrosDir)
}
