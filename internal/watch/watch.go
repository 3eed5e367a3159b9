// Package watch decodes runs as they complete.
//
// A Watcher observes an output directory for run status files. When a
// status reports a finished acquisition and the run has no CSV table yet,
// its frame log is decoded.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/pixdaq/internal/adapters/fs"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/ports"
	"github.com/bft-labs/pixdaq/internal/run"
)

// DecodeFunc decodes one finished run.
type DecodeFunc func(ctx context.Context, names run.Names, status domain.RunStatus) error

// Config holds watcher options.
type Config struct {
	// Dir is the run output directory.
	Dir string

	// DebounceDelay collapses bursts of events for one run.
	DebounceDelay time.Duration

	// MaxAttempts bounds decode attempts per run.
	MaxAttempts int

	RetryInitial time.Duration
	RetryMax     time.Duration
}

// DefaultConfig returns a Config watching dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		DebounceDelay: 100 * time.Millisecond,
		MaxAttempts:   3,
		RetryInitial:  DefaultBackoffInitial,
		RetryMax:      DefaultBackoffMax,
	}
}

// Watcher decodes completed runs in a directory.
type Watcher struct {
	cfg    Config
	decode DecodeFunc
	logger ports.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	handled  map[string]bool
	active   map[string]bool
	inflight sync.WaitGroup
}

// New returns a watcher calling fn for each completed run.
func New(cfg Config, fn DecodeFunc, logger ports.Logger) *Watcher {
	def := DefaultConfig(cfg.Dir)
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = def.DebounceDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	return &Watcher{
		cfg:     cfg,
		decode:  fn,
		logger:  logger,
		timers:  map[string]*time.Timer{},
		handled: map[string]bool{},
		active:  map[string]bool{},
	}
}

// Scan processes every status file currently in the directory and returns
// how many runs were decoded.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	matches, err := filepath.Glob(filepath.Join(w.cfg.Dir, "*"+fs.StatusSuffix))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		ok, err := w.process(ctx, fs.PrefixOf(m))
		if err != nil {
			w.logger.Error("decode failed", ports.String("status", m), ports.Err(err))
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Run scans the directory, then decodes runs as their status files change
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}
	w.logger.Info("watching for completed runs", ports.String("dir", w.cfg.Dir))

	if _, err := w.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			prefix := fs.PrefixOf(event.Name)
			if prefix == "" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx, prefix)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, prefix string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[prefix]; ok && t.Stop() {
		w.inflight.Done()
	}
	w.inflight.Add(1)
	w.timers[prefix] = time.AfterFunc(w.cfg.DebounceDelay, func() {
		defer w.inflight.Done()

		w.mu.Lock()
		delete(w.timers, prefix)
		w.mu.Unlock()

		if _, err := w.process(ctx, prefix); err != nil && ctx.Err() == nil {
			w.logger.Error("decode failed", ports.String("run", prefix), ports.Err(err))
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for p, t := range w.timers {
		if t.Stop() {
			w.inflight.Done()
		}
		delete(w.timers, p)
	}
	w.mu.Unlock()
	w.inflight.Wait()
}

// process decodes the run at prefix if it is complete and not yet decoded.
func (w *Watcher) process(ctx context.Context, prefix string) (bool, error) {
	// A prefix is processed by one caller at a time.
	w.mu.Lock()
	if w.handled[prefix] || w.active[prefix] {
		w.mu.Unlock()
		return false, nil
	}
	w.active[prefix] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.active, prefix)
		w.mu.Unlock()
	}()

	status, err := fs.NewStatusFile(prefix).Load(ctx)
	if err != nil {
		return false, err
	}
	if !status.Complete() {
		w.logger.Debug("run not complete", ports.String("run", prefix), ports.String("phase", status.Phase))
		return false, nil
	}

	names := run.NamesFromPrefix(prefix)
	if upToDate(names) {
		w.markHandled(prefix)
		return false, nil
	}

	b := newBackoff(w.cfg.RetryInitial, w.cfg.RetryMax)
	for attempt := 1; ; attempt++ {
		err = w.decode(ctx, names, status)
		if err == nil {
			break
		}
		if attempt >= w.cfg.MaxAttempts {
			w.markHandled(prefix)
			return false, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		w.logger.Warn("decode attempt failed",
			ports.String("run", prefix),
			ports.Int("attempt", attempt),
			ports.Err(err),
		)
		if err := b.wait(ctx); err != nil {
			return false, err
		}
	}

	w.markHandled(prefix)
	w.logger.Info("run decoded", ports.String("run", prefix), ports.String("run_id", status.RunID))
	return true, nil
}

func (w *Watcher) markHandled(prefix string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handled[prefix] = true
}

// upToDate reports whether the run's CSV is at least as new as its log.
func upToDate(n run.Names) bool {
	csv, err := os.Stat(n.CSV)
	if err != nil {
		return false
	}
	dat, err := os.Stat(n.Dat)
	if err != nil {
		return true
	}
	return !csv.ModTime().Before(dat.ModTime())
}
