package services

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

const defaultSettleDelay = 500 * time.Millisecond

// WatcherService keeps the index in sync with files dropped into the upload
// directory. Removed files are only logged; the index has no per-document delete.
type WatcherService struct {
	docs   *DocumentService
	dir    string
	settle time.Duration
	log    *logger.Logger
}

func NewWatcherService(docs *DocumentService, log *logger.Logger) *WatcherService {
	if log == nil {
		log = logger.NewNop()
	}
	return &WatcherService{docs: docs, dir: docs.UploadDir(), settle: defaultSettleDelay, log: log}
}

func isSupportedFile(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	_, err := FormatFromPath(path)
	return err == nil
}

// ScanDirectory indexes every supported file under the upload directory and
// returns how many were newly added.
func (w *WatcherService) ScanDirectory(ctx context.Context) (int, error) {
	w.log.Info("scanning upload directory", "dir", w.dir)
	added := 0
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == w.dir {
				return filepath.SkipAll
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !isSupportedFile(path) {
			return nil
		}
		res, err := w.docs.AddDocument(ctx, path)
		if err != nil {
			// One bad file should not stop the scan.
			w.log.Warn("could not index file", "path", path, "error", err, "kind", models.ErrorKind(err))
			return nil
		}
		if !res.Skipped {
			added++
		}
		return nil
	})
	w.log.Info("directory scan finished", "dir", w.dir, "added", added)
	return added, err
}

// Watch blocks until ctx is cancelled, indexing supported files as they are
// created or written. Bursts of events for one file are coalesced.
func (w *WatcherService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watching upload directory", "dir", w.dir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
		ready  = make(chan string, 64)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.settle)
			return
		}
		timers[path] = time.AfterFunc(w.settle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
				schedule(event.Name)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				w.log.Info("file removed from upload directory; its chunks stay indexed until reset", "path", event.Name)
			}

		case path := <-ready:
			res, err := w.docs.AddDocument(ctx, path)
			if err != nil {
				w.log.Warn("could not index file", "path", path, "error", err, "kind", models.ErrorKind(err))
				continue
			}
			if !res.Skipped {
				w.log.Info("indexed new file", "path", path, "chunks", res.Chunks)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)

		case <-ctx.Done():
			w.log.Info("watcher stopped", "dir", w.dir)
			return nil
		}
	}
}
