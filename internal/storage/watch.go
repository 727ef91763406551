package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the store when the dataset directory changes on disk. The
// upstream pipeline drops new instance files and rewrites heuristics.jsonl
// in place; events are debounced so a batch copy triggers one reload.
// Returns once the watcher is installed; watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Join(s.dir, "instances")); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer func() { _ = w.Close() }()
		var mu sync.Mutex
		var pending *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(reloadDebounce, func() {
					if err := s.Reload(); err != nil {
						slog.Warn("Dataset reload failed", "dir", s.dir, "err", err)
						return
					}
					m := s.Manifest()
					slog.Info("Dataset reloaded", "instances", len(m.InstanceIDs), "checksum", m.Checksum)
				})
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("Error watching dataset directory", "err", err)
			}
		}
	}()
	return nil
}
