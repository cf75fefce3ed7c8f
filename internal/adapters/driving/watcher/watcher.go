// Package watcher indexes documents as they appear in a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
	"github.com/custodia-labs/pdfqa/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before it is indexed.
const DefaultDebounce = 500 * time.Millisecond

// Indexer is the part of driving.IndexService the watcher needs.
type Indexer interface {
	IndexFile(ctx context.Context, path string) (*driving.IndexReport, error)
	Supports(name string) bool
}

// ReportFunc receives the outcome of each index attempt.
type ReportFunc func(path string, report *driving.IndexReport, err error)

// Watcher debounces file events in one directory and indexes supported files.
type Watcher struct {
	indexer  Indexer
	debounce time.Duration
	report   ReportFunc

	fsw   *fsnotify.Watcher
	dir   string
	ready chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReporter sets a callback invoked after each index attempt.
func WithReporter(fn ReportFunc) Option {
	return func(w *Watcher) {
		w.report = fn
	}
}

// New creates a watcher that indexes through indexer.
func New(indexer Indexer, opts ...Option) *Watcher {
	w := &Watcher{
		indexer:  indexer,
		debounce: DefaultDebounce,
		ready:    make(chan string, 16),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch starts watching dir and blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.Start(dir); err != nil {
		return err
	}
	return w.Run(ctx)
}

// Start subscribes to events in dir. Run must be called to process them.
func (w *Watcher) Start(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.fsw = fsw
	w.dir = dir
	logger.Info("Watching %s for new documents", dir)
	return nil
}

// Run processes events until ctx is cancelled. Index failures are logged and
// reported but never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	if w.fsw == nil {
		return errors.New("watcher not started")
	}
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if path := w.accept(event); path != "" {
				w.schedule(ctx, path)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch %s: %v", w.dir, err)

		case path := <-w.ready:
			w.index(ctx, path)
		}
	}
}

// accept returns the path to index for event, or "" to ignore it.
func (w *Watcher) accept(event fsnotify.Event) string {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return ""
	}
	if isHidden(event.Name) || !w.indexer.Supports(event.Name) {
		return ""
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return ""
	}
	return event.Name
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) index(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	report, err := w.indexer.IndexFile(ctx, path)
	if err != nil {
		logger.Warn("indexing %s failed: %v", path, err)
	} else {
		logger.Info("Indexed %s: %d chunks", path, report.Chunks)
		for _, warning := range report.Warnings {
			logger.Warn("%s: %s", path, warning)
		}
	}

	if w.report != nil {
		w.report(path, report, err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	//nolint:errcheck // Best-effort cleanup
	w.fsw.Close()
}

// ListSupported returns the supported, non-hidden files directly inside dir,
// sorted by name.
func ListSupported(dir string, supports func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) || !supports(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
