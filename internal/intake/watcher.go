package intake

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"pengystream/internal/logging"
	"pengystream/internal/metrics"
)

const (
	eventBuffer    = 256
	minResubscribe = time.Second
	maxResubscribe = 30 * time.Second
)

var errWatcherStopped = errors.New("fsnotify watcher closed")

// EventKind classifies a forwarded notification.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventWrite  EventKind = "write"
)

// Event is a notification that a file may have new content.
type Event struct {
	Path string
	Kind EventKind
	At   time.Time
}

// Watcher recursively watches the roots and emits file events.
type Watcher struct {
	roots  []string
	logger *slog.Logger
	events chan Event
}

// NewWatcher constructs a watcher for the given roots.
func NewWatcher(roots []string, logger *slog.Logger) *Watcher {
	return &Watcher{
		roots:  append([]string(nil), roots...),
		logger: logging.NewComponentLogger(logger, "intake"),
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the channel events are delivered on. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches until ctx is cancelled, re-creating the subscription with
// exponential backoff whenever the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	backoff := minResubscribe
	for {
		started := time.Now()
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxResubscribe {
			backoff = minResubscribe
		}
		logging.WarnWithContext(w.logger, "filesystem watcher stopped; resubscribing", "watcher_resubscribe",
			logging.Error(err),
			logging.Duration("backoff", backoff),
			logging.String(logging.FieldErrorHint, "check fs.inotify.max_user_watches and watch directory permissions"),
			logging.String(logging.FieldImpact, "new files are found by the periodic rescan until the watcher recovers"),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, maxResubscribe)
	}
}

func (w *Watcher) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Debug("close watcher", logging.Error(err))
		}
	}()

	count := 0
	for _, root := range w.roots {
		count += w.addTree(ctx, watcher, root, false)
	}
	if count == 0 {
		return errors.New("no watch directories could be subscribed")
	}
	w.logger.Info("watching directories",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.Int("directories", count),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errWatcherStopped
			}
			w.handle(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return errWatcherStopped
			}
			metrics.WatchEventsTotal.WithLabelValues("error").Inc()
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("filesystem event queue overflowed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "watcher_overflow"),
					logging.String(logging.FieldErrorHint, "raise fs.inotify.max_queued_events"),
					logging.String(logging.FieldImpact, "dropped files are found by the next rescan"),
				)
				continue
			}
			return err
		}
	}
}

func (w *Watcher) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if strings.Contains(event.Name, string(filepath.Separator)+".") {
		return
	}
	metrics.WatchEventsTotal.WithLabelValues(opName(event.Op)).Inc()

	switch {
	case event.Has(fsnotify.Create):
		if isDir(event.Name) {
			// Files can land in a new directory before it is subscribed.
			w.addTree(ctx, watcher, event.Name, true)
			return
		}
		w.emit(ctx, Event{Path: event.Name, Kind: EventCreate, At: time.Now()})
	case event.Has(fsnotify.Write):
		w.emit(ctx, Event{Path: event.Name, Kind: EventWrite, At: time.Now()})
	}
}

// addTree subscribes root and its subdirectories. When emitFiles is set,
// files already present are forwarded as create events.
func (w *Watcher) addTree(ctx context.Context, watcher *fsnotify.Watcher, root string, emitFiles bool) int {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if emitFiles && d.Type().IsRegular() {
				w.emit(ctx, Event{Path: path, Kind: EventCreate, At: time.Now()})
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "watch_add_failed"),
				logging.String(logging.FieldErrorHint, "check permissions and fs.inotify.max_user_watches"),
				logging.String(logging.FieldImpact, "files in this directory are found by the periodic rescan only"),
			)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		w.logger.Debug("walk watch root", logging.String("path", root), logging.Error(err))
	}
	return count
}

func (w *Watcher) emit(ctx context.Context, event Event) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
