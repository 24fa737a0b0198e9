// Package watch dispatches filesystem creation events to handlers.
//
// One Loop owns one directory. Events flow through a buffered queue to a
// single worker goroutine, so handlers for a given directory run strictly
// one at a time, in arrival order. Directories watched by separate Loops
// proceed independently.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// queueSize bounds how many unhandled creation events may pile up while
// the worker is busy. Beyond this, events are dropped with a warning.
const queueSize = 64

// Target describes one watched directory. Targets are built at startup
// and never mutated afterwards.
type Target struct {
	// Dir is the directory whose creation events are dispatched.
	Dir string

	// Debounce is slept before each dispatch, giving the producing
	// process time to finish writing the new file.
	Debounce time.Duration

	// Match filters events by base name. A nil Match accepts every file.
	Match func(name string) bool

	// Handle processes one created path. A returned error is logged and
	// the loop moves on; handlers never terminate the loop.
	Handle func(ctx context.Context, path string) error
}

// Loop watches target.Dir until ctx is cancelled. Creation events that
// pass the Match filter and do not stat as directories are queued for the
// worker. On cancellation the loop stops accepting events, waits for an
// in-flight dispatch to finish, drops anything still queued, and returns.
//
// Watcher-level errors and per-file handler errors are logged; only a
// failure to establish the watch itself is returned.
func Loop(ctx context.Context, target Target, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(target.Dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", target.Dir, err)
	}

	queue := make(chan string, queueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker(ctx, target, queue, logger)
	}()
	defer wg.Wait()
	defer close(queue)

	logger.Info("watching", slog.String("dir", target.Dir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if target.Match != nil && !target.Match(filepath.Base(ev.Name)) {
				continue
			}
			if isDir(ev.Name) {
				continue
			}
			select {
			case queue <- ev.Name:
			default:
				logger.Warn("event queue full, dropping",
					slog.String("dir", target.Dir),
					slog.String("path", ev.Name))
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error",
				slog.String("dir", target.Dir),
				slog.String("error", werr.Error()))
		}
	}
}

// worker drains the queue sequentially. After cancellation it returns at
// the next queue read, dropping whatever was still buffered.
func worker(ctx context.Context, target Target, queue <-chan string, logger *slog.Logger) {
	for path := range queue {
		if ctx.Err() != nil {
			return
		}
		if target.Debounce > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(target.Debounce):
			}
		}
		if err := target.Handle(ctx, path); err != nil {
			logger.Error("handler failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
}

// isDir reports whether path currently stats as a directory. A failed
// stat counts as "not a directory": the entry may not exist yet, and the
// stager's stability wait owns that case.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
