package roster

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/meowtion/sensor/internal/imaging"
)

// imageExtensions are the asset types the watcher reacts to.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// Watch starts an fsnotify watcher on the reference-image assets directory
// and invalidates the encoder's cached encodings when an asset changes on
// disk. It blocks until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. A Rename fires on the old path only; the replacement arrives as a
// separate Create event, so invalidating the old path is sufficient.
func Watch(ctx context.Context, enc *imaging.Encoder, assetsDir string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, assetsDir); err != nil {
		return err
	}

	logger.Info("asset watcher: started", slog.String("root", assetsDir))

	for {
		select {
		case <-ctx.Done():
			logger.Info("asset watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("asset watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if !imageExtensions[strings.ToLower(filepath.Ext(absPath))] {
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				enc.Invalidate(absPath)
				logger.Debug("asset watcher: invalidated cached encoding",
					slog.String("path", absPath),
					slog.String("op", ev.Op.String()))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("asset watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
