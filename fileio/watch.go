package fileio

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce is how long to wait for more events before calling back.
	// Default: 100ms
	Debounce time.Duration
}

// DefaultWatchOptions returns sensible defaults.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{Debounce: 100 * time.Millisecond}
}

// Watch calls fn each time path is written, created or replaced, folding
// bursts of events within the debounce window into one call. It watches the
// parent directory so editors that save by rename are still seen. Watch
// blocks until ctx is cancelled, returning nil, or the watcher fails.
func Watch(ctx context.Context, path string, opts WatchOptions, fn func(path string)) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatchOptions().Debounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-timer.C:
			fn(path)
		}
	}
}
