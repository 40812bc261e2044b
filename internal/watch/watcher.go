// Package watch translates filesystem changes into file.* bus events so
// agents and workflows can react to edits in the working tree.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dirigent-sh/dirigent/internal/bus"
	"github.com/dirigent-sh/dirigent/internal/logging"
)

// Change is the payload of file.* events.
type Change struct {
	// Path is the affected file.
	Path string `json:"path"`
	// Op is the raw filesystem operation name.
	Op string `json:"op"`
}

// Watcher publishes file.created, file.changed, and file.deleted events
// for the watched directories. Subdirectories present at Add time are
// watched too; directories created later are added as they appear.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  *bus.Bus
	logger  *logging.DebugLogger

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New creates a Watcher publishing on the given bus.
func New(events *bus.Bus, logger *logging.DebugLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		watcher: fw,
		events:  events,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Add watches a directory tree. Files inside watched directories are
// covered; nested directories are walked and added individually.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Start begins translating filesystem events until the context is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
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
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Log("[watch] error: %v", err)
		}
	}
}

// handle maps one filesystem operation to a bus event. Renames surface
// as deletions of the old path; the new path arrives as a create.
func (w *Watcher) handle(event fsnotify.Event) {
	var typ bus.EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		typ = bus.EventFileCreated
		// New directories need their own watch to cover their contents.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Log("[watch] add %s: %v", event.Name, err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		typ = bus.EventFileChanged
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		typ = bus.EventFileDeleted
	default:
		return
	}

	w.events.Publish(typ, Change{Path: event.Name, Op: event.Op.String()},
		bus.PublishOptions{Source: "watch"})
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.watcher.Close()
}
