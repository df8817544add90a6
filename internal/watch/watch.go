// Package watch notices edits made directly in OmniFocus, which no write tool sees, by watching
// its database directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 2 * time.Second

// Watcher calls OnChange once per burst of filesystem events under Path.
type Watcher struct {
	Path     string
	Debounce time.Duration
	OnChange func(ctx context.Context)
	Logger   *log.Logger
}

// relevant filters out attribute-only changes.
func relevant(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

/*
Run watches until ctx is done.

BEHAVIOR:
---------
- the first relevant event arms a timer of Debounce; later events push it back
- when the timer fires, OnChange runs once on the watcher goroutine
- watcher errors are logged, not fatal
- Run returns nil on cancellation, an error only when the watch cannot be set up
*/
func (w *Watcher) Run(ctx context.Context) error {
	if w.OnChange == nil {
		return errors.New("watch: OnChange is required")
	}
	logger := w.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.Path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Path, err)
	}
	logger.Printf("watching %s", w.Path)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			pending++
			timer.Reset(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Printf("watcher error: %v", err)

		case <-timer.C:
			logger.Printf("%d change(s) under %s, invalidating", pending, w.Path)
			pending = 0
			w.OnChange(ctx)
		}
	}
}
