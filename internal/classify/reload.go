package classify

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches a pattern-table file and swaps the classifier's table
// when it changes. A broken edit keeps the previous table in place.
type Reloader struct {
	classifier *Classifier
	path       string
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
}

// NewReloader creates a reloader for the given pattern file. The file does
// not need to exist yet; the parent directory is watched so an atomic
// rename into place is picked up.
func NewReloader(classifier *Classifier, path string, logger *slog.Logger) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		classifier: classifier,
		path:       path,
		watcher:    watcher,
		logger:     logger.With("component", "classify"),
	}, nil
}

// Run processes watch events until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) {
	defer r.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("pattern watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	table, err := LoadPatterns(r.path)
	if err != nil {
		r.logger.Warn("pattern table reload failed, keeping previous table",
			"path", r.path, "error", err)
		return
	}
	if err := r.classifier.SetPatterns(table); err != nil {
		r.logger.Warn("pattern table compile failed, keeping previous table",
			"path", r.path, "error", err)
		return
	}
	r.logger.Info("pattern table reloaded", "path", r.path)
}
