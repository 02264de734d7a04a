// Package watcher turns filesystem create events into processing jobs.
// One fsnotify watcher covers every rule folder, non-recursively; new
// PDFs are debounced, checked for write stability, then handed to the
// processor under a bounded worker set.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/apoussier/socrate/rules"
)

// Processor handles one stable file under its folder's rule.
type Processor interface {
	Process(ctx context.Context, rule rules.Rule, path string) error
}

// Config tunes detection timing and concurrency.
type Config struct {
	// Debounce is how long after the last create event a file waits
	// before stability checking starts. Copies into the folder fire
	// several events for one file.
	Debounce time.Duration
	// StabilityMaxWait bounds the whole stability check.
	StabilityMaxWait time.Duration
	// StabilityPoll is the size re-read interval.
	StabilityPoll time.Duration
	// MaxConcurrent caps simultaneously processed files.
	MaxConcurrent int
}

// DefaultConfig returns production timing.
func DefaultConfig() Config {
	return Config{
		Debounce:         5 * time.Second,
		StabilityMaxWait: 30 * time.Second,
		StabilityPoll:    1 * time.Second,
		MaxConcurrent:    4,
	}
}

// Watcher owns the fsnotify subscription and the worker set.
type Watcher struct {
	cfg  Config
	log  *slog.Logger
	proc Processor

	byFolder map[string]rules.Rule

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	wg  sync.WaitGroup
	sem chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New prepares a Watcher over the given rules. Folders are indexed by
// cleaned path; duplicate paths keep the first rule.
func New(cfg Config, log *slog.Logger, proc Processor, ruleList []rules.Rule) *Watcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	byFolder := make(map[string]rules.Rule, len(ruleList))
	for _, r := range ruleList {
		key := filepath.Clean(r.Path)
		if _, dup := byFolder[key]; !dup {
			byFolder[key] = r
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		cfg:      cfg,
		log:      log.With(slog.String("component", "watcher")),
		proc:     proc,
		byFolder: byFolder,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		timers:   make(map[string]*time.Timer),
	}
}

// Start subscribes to every rule folder and picks up PDFs already
// present. A folder that does not exist is logged and skipped; it never
// fails the whole watcher.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	w.fsw = fsw

	for folder := range w.byFolder {
		if info, err := os.Stat(folder); err != nil || !info.IsDir() {
			w.log.Warn("watched folder unavailable, skipping", slog.String("folder", folder))
			continue
		}
		if err := fsw.Add(folder); err != nil {
			w.log.Warn("could not watch folder",
				slog.String("folder", folder),
				slog.String("error", err.Error()))
			continue
		}
		w.log.Info("watching folder", slog.String("folder", folder))
		w.scanExisting(folder)
	}

	go w.run()
	return nil
}

// Stop shuts down event handling, then waits up to timeout for running
// jobs before abandoning them.
func (w *Watcher) Stop(timeout time.Duration) {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			w.fsw.Close()
		}
		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
		<-w.doneCh

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			w.log.Info("all jobs drained")
		case <-time.After(timeout):
			w.log.Warn("shutdown timeout, abandoning running jobs",
				slog.Duration("timeout", timeout))
		}
		w.cancel()
	})
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent reacts to creations only. Write events would make the
// daemon re-detect the outputs it places into same-folder destinations;
// in-flight copies are covered by the debounce plus the stability gate.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}
	if !isPDF(event.Name) {
		return
	}
	rule, ok := w.byFolder[filepath.Dir(filepath.Clean(event.Name))]
	if !ok {
		return
	}
	w.schedule(rule, event.Name)
}

// schedule arms (or re-arms) the debounce timer for one path. A repeat
// creation of the same file (delete-and-recreate copy tools) pushes
// processing back by the full debounce window.
func (w *Watcher) schedule(rule rules.Rule, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
		return
	default:
	}

	if t, exists := w.timers[path]; exists {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.launch(rule, path)
	})
}

// scanExisting enqueues PDFs already sitting in the folder at startup.
// They go through the same debounce path as fresh events, in case a
// copy is still in flight.
func (w *Watcher) scanExisting(folder string) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		w.log.Warn("initial scan failed",
			slog.String("folder", folder),
			slog.String("error", err.Error()))
		return
	}
	rule := w.byFolder[folder]
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		w.schedule(rule, filepath.Join(folder, e.Name()))
	}
}

func (w *Watcher) launch(rule rules.Rule, path string) {
	select {
	case <-w.stopCh:
		return
	default:
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-w.ctx.Done():
			return
		}
		if !WaitStable(path, w.cfg.StabilityMaxWait, w.cfg.StabilityPoll, w.log) {
			return
		}
		if err := w.proc.Process(w.ctx, rule, path); err != nil {
			w.log.Error("processing failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
