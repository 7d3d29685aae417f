package git

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// ErrNoRepository is returned when a directory is not inside a git work tree.
var ErrNoRepository = errors.NewError(errors.CategoryNotFound, "not inside a git repository").Build()

// Head describes the checked out state of a repository.
type Head struct {
	// Root is the work tree root of the repository containing the queried dir.
	Root   string
	Commit string
	// Branch is empty for a detached HEAD.
	Branch string
}

// ReadHead opens the repository containing dir, searching parent directories
// for the .git entry.
func ReadHead(dir string) (*Head, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if stderrors.Is(err, git.ErrRepositoryNotExists) {
			return nil, errors.WrapError(err, errors.CategoryNotFound, ErrNoRepository.Message()).
				WithContext("dir", dir).
				Build()
		}
		return nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD of %s: %w", dir, err)
	}

	h := &Head{Commit: ref.Hash().String()}
	if ref.Name() != plumbing.HEAD && ref.Name().IsBranch() {
		h.Branch = ref.Name().Short()
	}
	if wt, err := repo.Worktree(); err == nil {
		h.Root = wt.Filesystem.Root()
	}
	return h, nil
}

// SourceCommits maps every dir to the HEAD commit of its repository. Dirs that
// are not inside a repository are left out.
func SourceCommits(dirs []string) map[string]string {
	commits := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		dir = filepath.Clean(dir)
		if _, done := commits[dir]; done {
			continue
		}
		head, err := ReadHead(dir)
		if err != nil {
			if stderrors.Is(err, ErrNoRepository) {
				slog.Debug("Source dir is not in a repository", logfields.Path(dir))
			} else {
				slog.Warn("Cannot read source commit", logfields.Path(dir), logfields.Error(err))
			}
			continue
		}
		commits[dir] = head.Commit
	}
	return commits
}
