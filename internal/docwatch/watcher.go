package docwatch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const settleDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on root and applies document changes until
// ctx is cancelled. Writes are collected until the directory has been quiet
// for a short delay so a document copied in several writes is checked once.
// Renames trigger a full Sync.
func (s *Syncer) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger := s.logger()
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	resync := false
	var settle *time.Timer
	var settleCh <-chan time.Time
	schedule := func() {
		if settle == nil {
			settle = time.NewTimer(settleDelay)
			settleCh = settle.C
		} else {
			settle.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			if resync {
				resync = false
				clear(pending)
				if err := s.Sync(ctx); err != nil {
					logger.Warn("watcher: resync failed", slog.String("error", err.Error()))
				}
				continue
			}
			for rel := range pending {
				if err := s.Apply(ctx, rel); err != nil {
					logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					resync = true
					schedule()
					continue
				}
			}

			if !s.Docs.IsDocument(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				pending[rel] = struct{}{}
				schedule()
			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old name only; the new name arrives as
				// a Create if it stays under root.
				resync = true
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
