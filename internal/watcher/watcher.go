// Package watcher turns filesystem creation events under a root
// directory into validated, debounced work items drained by a bounded
// worker pool.
package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tphakala/birdcam-go/internal/logging"
)

// Callback processes one ready file. Errors are logged and the file is
// dropped; a failing callback never stops the worker loop.
type Callback func(path string) error

const (
	defaultSettleDelay = 500 * time.Millisecond
	defaultQueueSize   = 100
	defaultWorkers     = 1

	// stopTimeout bounds how long Stop waits for goroutines to drain.
	stopTimeout = 2 * time.Second

	// duplicateWindow suppresses a second submission of the same path,
	// closing the race between a new directory's scan and the create
	// events of files landing in it.
	duplicateWindow = 2 * time.Second
)

var defaultPatterns = []string{"jpg", "jpeg", "png"}

// Watcher observes a directory tree recursively for newly created files
// matching a set of extension patterns. Matches are funneled into a
// bounded queue; enqueueing blocks when the queue is full so a large
// backlog throttles the event side instead of dropping work.
type Watcher struct {
	root            string
	callback        Callback
	patterns        []string
	settleDelay     time.Duration
	queueSize       int
	workers         int
	processExisting bool

	fsw   *fsnotify.Watcher
	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup

	recentMu sync.Mutex
	recent   map[string]time.Time

	log *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPatterns sets the accepted file extensions (case-insensitive,
// leading dot optional).
func WithPatterns(patterns []string) Option {
	return func(w *Watcher) { w.patterns = patterns }
}

// WithSettleDelay sets the pause between a creation event and the file
// being treated as complete.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) { w.settleDelay = d }
}

// WithQueueSize sets the bounded queue capacity. Zero disables the
// queue entirely: the callback then runs synchronously on the event
// goroutine, acceptable only for low-throughput sources.
func WithQueueSize(n int) Option {
	return func(w *Watcher) { w.queueSize = n }
}

// WithWorkers sets how many goroutines drain the queue.
func WithWorkers(n int) Option {
	return func(w *Watcher) { w.workers = n }
}

// WithProcessExisting makes Start walk the existing tree and enqueue
// every matching file before watching for new ones.
func WithProcessExisting(enabled bool) Option {
	return func(w *Watcher) { w.processExisting = enabled }
}

// New creates a watcher for the given root directory. The root is
// created if it does not exist.
func New(root string, callback Callback, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating watch root %q: %w", absRoot, err)
	}

	w := &Watcher{
		root:        absRoot,
		callback:    callback,
		patterns:    defaultPatterns,
		settleDelay: defaultSettleDelay,
		queueSize:   defaultQueueSize,
		workers:     defaultWorkers,
		done:        make(chan struct{}),
		recent:      make(map[string]time.Time),
		log:         logging.ForService("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.patterns = normalizePatterns(w.patterns)
	if w.workers < 1 {
		w.workers = defaultWorkers
	}
	if w.queueSize < 0 {
		w.queueSize = 0
	}

	return w, nil
}

// Start begins recursive observation of the root. When configured it
// first enqueues every matching existing file, bounded by the same
// queue so a large backlog throttles naturally.
func (w *Watcher) Start() error {
	var startErr error
	w.startOnce.Do(func() {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			startErr = fmt.Errorf("creating fsnotify watcher: %w", err)
			return
		}
		w.fsw = fsw

		if w.queueSize > 0 {
			w.queue = make(chan string, w.queueSize)
			for range w.workers {
				w.wg.Add(1)
				go w.workerLoop()
			}
		}

		if err := w.watchTree(w.root, w.processExisting); err != nil {
			_ = fsw.Close()
			startErr = err
			return
		}

		w.wg.Add(1)
		go w.eventLoop()

		w.log.Info("watching directory", "root", w.root, "patterns", w.patterns, "workers", w.workers)
	})
	return startErr
}

// Stop stops event observation, signals the worker loops to drain and
// exit, and joins all goroutines within a bounded timeout. It is
// idempotent; restarting a stopped watcher is not supported.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if err := w.fsw.Close(); err != nil {
				w.log.Warn("error closing fsnotify watcher", "error", err)
			}
		}

		joined := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
			w.log.Info("watcher stopped", "root", w.root)
		case <-time.After(stopTimeout):
			w.log.Warn("watcher stop timed out waiting for workers", "timeout", stopTimeout)
		}
	})
}

// eventLoop consumes fsnotify events until Stop closes the watcher.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				w.handleCreate(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem event error", "error", err)
		}
	}
}

// handleCreate dispatches one creation event. New directories are
// watched and scanned, since files may land in them before the watch
// is registered. New files settle before they are queued.
func (w *Watcher) handleCreate(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Already gone; nothing to process.
		return
	}

	if info.IsDir() {
		if err := w.watchTree(path, true); err != nil {
			w.log.Warn("could not watch new directory", "path", path, "error", err)
		}
		return
	}

	if !w.matches(path) {
		return
	}

	w.log.Info("new image detected", "path", path)
	w.settleAndSubmit(path)
}

// settleAndSubmit waits out the settle delay off the event goroutine,
// then submits the file. Submission blocks on a full queue.
func (w *Watcher) settleAndSubmit(path string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case <-time.After(w.settleDelay):
		case <-w.done:
			return
		}
		w.submit(path)
	}()
}

// submit hands the file to the queue, or runs the callback inline when
// no queue is configured. A path submitted twice within the duplicate
// window is dropped the second time.
func (w *Watcher) submit(path string) {
	if w.alreadySubmitted(path) {
		return
	}
	if w.queue == nil {
		w.process(path)
		return
	}
	select {
	case w.queue <- path:
	case <-w.done:
	}
}

// alreadySubmitted records the submission and reports whether the same
// path was submitted within the duplicate window. A file landing in a
// brand-new directory is seen both by the directory scan and by its own
// create event; without this guard it could reach two workers at once.
// A file rewritten at the same path after the window is picked up again.
func (w *Watcher) alreadySubmitted(path string) bool {
	now := time.Now()
	w.recentMu.Lock()
	defer w.recentMu.Unlock()
	for p, at := range w.recent {
		if now.Sub(at) > duplicateWindow {
			delete(w.recent, p)
		}
	}
	if _, ok := w.recent[path]; ok {
		return true
	}
	w.recent[path] = now
	return false
}

// workerLoop drains the queue until Stop, then drains whatever is left
// without blocking and exits.
func (w *Watcher) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case path := <-w.queue:
			w.process(path)
		case <-w.done:
			for {
				select {
				case path := <-w.queue:
					w.process(path)
				default:
					return
				}
			}
		}
	}
}

// process invokes the callback for one file. Failures are logged and
// the file is dropped; no retry.
func (w *Watcher) process(path string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("panic processing file", "path", path, "panic", r)
		}
	}()

	if err := w.callback(path); err != nil {
		w.log.Error("error processing file", "path", path, "error", err)
	}
}

// watchTree registers watches for dir and every subdirectory. When
// enqueueExisting is set, matching files already present are collected
// and drained through the queue by a single backlog goroutine.
func (w *Watcher) watchTree(dir string, enqueueExisting bool) error {
	var backlog []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watching %q: %w", path, err)
			}
			return nil
		}
		if enqueueExisting && w.matches(path) {
			backlog = append(backlog, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(backlog) > 0 {
		w.submitBacklog(backlog)
	}
	return nil
}

// submitBacklog settles once for the whole batch, then feeds each file
// to the queue in walk order. One goroutine regardless of backlog size,
// so a full queue throttles the drain instead of fanning out a
// goroutine per file.
func (w *Watcher) submitBacklog(paths []string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		select {
		case <-time.After(w.settleDelay):
		case <-w.done:
			return
		}
		for _, path := range paths {
			select {
			case <-w.done:
				return
			default:
			}
			w.log.Info("queueing existing file", "path", path)
			w.submit(path)
		}
	}()
}

// matches reports whether the path's extension is one of the configured
// patterns.
func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	for _, pattern := range w.patterns {
		if ext == pattern {
			return true
		}
	}
	return false
}

// normalizePatterns lowercases patterns and strips leading dots so
// "JPG", ".jpg" and "jpg" are equivalent.
func normalizePatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return defaultPatterns
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	if len(normalized) == 0 {
		return defaultPatterns
	}
	return normalized
}
