// Package watcher observes the people folder and asks for a re-sync when
// contact notes disappear, so a disambiguated note can take over its
// canonical name without waiting for the next scheduled pass.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collects bursts of removals into one trigger.
const DefaultDebounce = 2 * time.Second

// TriggerFunc is called with the vault-relative paths of the notes removed
// or renamed since the previous call.
type TriggerFunc func(ctx context.Context, paths []string)

// Watch watches peoplePath (relative to vaultRoot) until ctx is cancelled.
// When the folder does not exist yet, its closest existing ancestor is
// watched and subfolders are added as they appear.
func Watch(ctx context.Context, vaultRoot, peoplePath string, debounce time.Duration, logger *slog.Logger, trigger TriggerFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	base := filepath.Join(vaultRoot, filepath.FromSlash(peoplePath))
	start := existingAncestor(base, vaultRoot)
	if err := addDirsRecursive(w, start); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("people", base), slog.String("watching", start))

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = map[string]struct{}{}
	)
	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerC = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerC:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			logger.Debug("watcher: notes removed", slog.Any("paths", paths))
			trigger(ctx, paths)

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
					continue
				}
			}

			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 || !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if !within(base, ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(vaultRoot, ev.Name)
			if relErr != nil {
				continue
			}
			schedule(filepath.ToSlash(rel))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// existingAncestor returns dir or its closest existing parent, stopping at
// root.
func existingAncestor(dir, root string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return root
		}
		if dir == root || !within(root, dir) {
			return root
		}
		dir = filepath.Dir(dir)
	}
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
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
