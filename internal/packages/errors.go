package packages

import (
	"fmt"

	ferrors "git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
)

// PathErrorKind tells which lookup or metadata field produced a PathError.
type PathErrorKind string

const (
	KindMissingDirectory PathErrorKind = "missing-directory"
	KindNotFixed         PathErrorKind = "path-not-fixed"
	KindDirectory        PathErrorKind = "directory"
	KindFile             PathErrorKind = "file"
	KindArgument         PathErrorKind = "argument"
	KindOutput           PathErrorKind = "output"
	KindTarget           PathErrorKind = "target"
)

// PathError reports a path that could not be resolved for a package. First
// and Second hold the candidates involved, when there are any.
type PathError struct {
	Kind    PathErrorKind
	Package string
	Message string
	First   string
	Second  string
	Err     error
}

// NewPathError builds a PathError for pkg.
func NewPathError(kind PathErrorKind, pkg, message string, candidates ...string) *PathError {
	e := &PathError{Kind: kind, Package: pkg, Message: message}
	if len(candidates) > 0 {
		e.First = candidates[0]
	}
	if len(candidates) > 1 {
		e.Second = candidates[1]
	}
	return e
}

func (e *PathError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Package, e.Message)
	switch {
	case e.First != "" && e.Second != "":
		msg = fmt.Sprintf("%s: %s vs %s", msg, e.First, e.Second)
	case e.First != "":
		msg = fmt.Sprintf("%s: '%s'", msg, e.First)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PathError) Unwrap() error { return e.Err }

// Category classifies path errors for exit code selection.
func (e *PathError) Category() ferrors.ErrorCategory {
	if e.Kind == KindMissingDirectory {
		return ferrors.CategoryFileSystem
	}
	return ferrors.CategoryPath
}

// Wrap returns a copy of e reattributed to kind, keeping e as the cause.
func (e *PathError) Wrap(kind PathErrorKind, message string) *PathError {
	return &PathError{
		Kind:    kind,
		Package: e.Package,
		Message: message,
		First:   e.First,
		Second:  e.Second,
		Err:     e,
	}
}
