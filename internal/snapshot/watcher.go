package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new snapshot file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing snapshot file was written.
	OpModify
	// OpDelete indicates a snapshot file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one entity type file of a snapshot directory.
type FileEvent struct {
	Path       string
	EntityType string
	Op         EventOp
}

// Watcher watches a snapshot directory for changes to *.json files.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// NewWatcher creates a Watcher. It emits nothing until Start is called.
func NewWatcher() (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir. The parent directory is watched as well, so
// the watch survives dir being rotated away and recreated, as every export
// does. dir itself need not exist yet.
func (w *Watcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	dir = filepath.Clean(dir)
	if err := w.watcher.Add(filepath.Dir(dir)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(dir), err)
	}
	if err := w.watcher.Add(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dir = dir
	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
// The Events and Errors channels are closed afterwards.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of snapshot file changes.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true between Start and Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			var out []FileEvent
			if filepath.Clean(event.Name) == w.dir {
				out = w.dirChanged(event)
			} else if filepath.Dir(event.Name) == w.dir {
				if fe, ok := convertEvent(event); ok {
					out = append(out, fe)
				}
			}
			for _, fe := range out {
				select {
				case w.events <- fe:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// dirChanged handles the watched directory itself being created, removed
// or renamed. A recreated directory is watched again and the snapshot
// files already in it are reported, since they may have been written
// before the new watch was in place.
func (w *Watcher) dirChanged(event fsnotify.Event) []FileEvent {
	switch {
	case event.Has(fsnotify.Create):
		if err := w.watcher.Add(w.dir); err != nil {
			w.report(fmt.Errorf("failed to watch %s: %w", w.dir, err))
			return nil
		}
		out := []FileEvent{{Path: w.dir, Op: OpCreate}}
		types, err := EntityTypes(w.dir)
		if err != nil {
			w.report(err)
			return out
		}
		for _, name := range types {
			out = append(out, FileEvent{
				Path:       filepath.Join(w.dir, name+snapshotExt),
				EntityType: name,
				Op:         OpCreate,
			})
		}
		return out
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A renamed directory keeps its inotify watch; drop it so events
		// from the rotated copy are not mistaken for the live one.
		_ = w.watcher.Remove(w.dir)
		return []FileEvent{{Path: w.dir, Op: OpDelete}}
	default:
		return nil
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

func convertEvent(event fsnotify.Event) (FileEvent, bool) {
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, snapshotExt) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{
		Path:       event.Name,
		EntityType: strings.TrimSuffix(base, snapshotExt),
		Op:         op,
	}, true
}

// Watch recomputes deltas every time the exported directory has been quiet
// for the debounce interval after a change. Each run is reported through
// onRun. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, opts Options, debounce time.Duration, onRun func(*Result, error)) error {
	w, err := NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Start(opts.ExportedDir); err != nil {
		_ = w.Stop()
		return err
	}
	defer w.Stop()

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if opts.Logger != nil {
				opts.Logger.Printf("%s %s", ev.Op, ev.Path)
			}
			if ev.EntityType == "" && ev.Op == OpDelete {
				// The snapshot was rotated away; wait for its replacement.
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			if opts.Logger != nil {
				opts.Logger.Printf("WARNING: watcher error: %v", err)
			}

		case <-timer.C:
			onRun(ComputeDeltas(ctx, opts))
		}
	}
}
