package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// Watcher calls onChange once a burst of changes to any of the watched files
// has been quiet for the debounce time.
type Watcher struct {
	files    map[string]struct{}
	debounce time.Duration
	onChange func()

	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher watches files. Their directories are watched rather than the
// files themselves so that editors replacing a file are noticed.
func NewWatcher(files []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	w := &Watcher{
		files:    make(map[string]struct{}, len(files)),
		debounce: debounce,
		onChange: onChange,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fw

	dirs := map[string]struct{}{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start runs the watch and debounce loops until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	for f := range w.files {
		slog.Info("Watching file", logfields.Path(f))
	}
	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.debounceLoop(ctx)
}

// Stop closes the watcher and waits for its loops.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("Watched file changed", logfields.File(event.Name), slog.String("op", event.Op.String()))
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.changes:
			timer.Reset(w.debounce)
		case <-timer.C:
			w.onChange()
		}
	}
}
