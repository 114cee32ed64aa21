package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports outbound message files as they appear, instead of polling
// a directory between scheduled runs. It backs the watch delivery mode for
// sites that drop files continuously; the scheduled delivery path does not
// depend on it.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher starts watching dirs for new files.
func NewWatcher(dirs []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return &Watcher{watcher: fw, logger: logger}, nil
}

// Run forwards the paths of newly created or rewritten files to out until
// ctx is cancelled. The channel is not closed on return; the caller owns it.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				select {
				case out <- event.Name:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}
