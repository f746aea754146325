// Package watcher ingests PDFs dropped into watched directories. A file
// written into a watched directory is processed after a debounce window;
// removing the file deletes the corresponding document.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Ingestor processes and deletes documents on behalf of the watcher.
type Ingestor interface {
	ProcessFile(ctx context.Context, path, sessionID string) (documentID string, err error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Watcher watches drop directories and feeds PDFs to the ingestor.
type Watcher struct {
	roots     []string
	sessionID string
	ingestor  Ingestor
	debounce  time.Duration
	logger    *zap.Logger

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timers   map[string]*time.Timer
	byPath   map[string]string // file path -> document id
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides the settle window before a written file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over the given drop directories. All ingested
// documents join the same session so they can be listed and cleared
// together.
func New(roots []string, sessionID string, ingestor Ingestor, opts ...Option) *Watcher {
	w := &Watcher{
		roots:     roots,
		sessionID: sessionID,
		ingestor:  ingestor,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		timers:    make(map[string]*time.Timer),
		byPath:    make(map[string]string),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Directories that do not exist are created. It
// runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, root := range w.roots {
		root = filepath.Clean(root)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0755); err != nil {
				_ = watcher.Close()
				w.mu.Unlock()
				return err
			}
		}
		if err := watcher.Add(root); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directories",
		zap.Strings("roots", w.roots),
		zap.String("session_id", w.sessionID))
	go w.run(ctx)
	return nil
}

// SyncExistingFiles ingests PDFs that were already present when the
// watcher started.
func (w *Watcher) SyncExistingFiles(ctx context.Context) {
	for _, root := range w.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if isPDF(path) {
				w.ingest(ctx, path)
			}
			return nil
		})
	}
}

// Directories returns a copy of the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	if !isPDF(path) {
		return
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		w.debounceIngest(ctx, path)
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.cancelTimer(path)
		w.removeDocument(ctx, path)
	}
}

// debounceIngest delays ingestion until the file has stopped changing
// for the debounce window, collapsing write bursts into one upload.
func (w *Watcher) debounceIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	// Re-ingesting an existing path replaces the prior document.
	w.removeDocument(ctx, path)

	documentID, err := w.ingestor.ProcessFile(ctx, path, w.sessionID)
	if err != nil {
		w.logger.Warn("drop ingestion failed",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	w.mu.Lock()
	w.byPath[path] = documentID
	w.mu.Unlock()
	w.logger.Info("drop file ingested",
		zap.String("path", path),
		zap.String("document_id", documentID))
}

func (w *Watcher) removeDocument(ctx context.Context, path string) {
	w.mu.Lock()
	documentID, ok := w.byPath[path]
	if ok {
		delete(w.byPath, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := w.ingestor.DeleteDocument(ctx, documentID); err != nil {
		w.logger.Warn("drop file delete failed",
			zap.String("path", path),
			zap.String("document_id", documentID),
			zap.Error(err))
		return
	}
	w.logger.Info("drop file document deleted",
		zap.String("path", path),
		zap.String("document_id", documentID))
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
