package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/memo"
	"murmur/internal/pipeline"
)

// Watcher monitors the recordings directory and feeds new audio files into
// the enrichment pipeline. Filenames already registered as memos are
// skipped, so restarts and backfills never double-ingest.
type Watcher struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	memos    *memo.Store
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a recordings watcher.
func New(cfg *config.Config, p *pipeline.Pipeline, memos *memo.Store, logger *slog.Logger) *Watcher {
	return &Watcher{
		cfg:      cfg,
		pipeline: p,
		memos:    memos,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		seen:     make(map[string]struct{}),
	}
}

// Start loads the known-memo set, optionally backfills existing files, and
// begins watching for new ones. It returns immediately; ingestion runs in
// the background until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.Ingest.Enabled {
		w.logger.Info("ingest watcher disabled")
		return nil
	}

	if err := w.loadKnown(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.cfg.Paths.RecordingsDir); err != nil {
		watcher.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		if w.cfg.Ingest.Backfill {
			if err := w.backfill(runCtx); err != nil {
				w.logger.Warn("backfill failed", logging.Error(err))
			}
		}

		for {
			select {
			case <-runCtx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isAudio(evt.Name) {
					w.ingest(runCtx, filepath.Base(evt.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", logging.Error(err))
			}
		}
	}()
	return nil
}

// Stop terminates watching and waits for in-flight ingestion.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.cancel = nil
}

// Backfill registers every audio file already in the recordings directory.
func (w *Watcher) Backfill(ctx context.Context) error {
	if err := w.loadKnown(ctx); err != nil {
		return err
	}
	return w.backfill(ctx)
}

func (w *Watcher) backfill(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Paths.RecordingsDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !isAudio(entry.Name()) {
			continue
		}
		w.ingest(ctx, entry.Name())
	}
	return nil
}

func (w *Watcher) ingest(ctx context.Context, filename string) {
	w.mu.Lock()
	if _, dup := w.seen[filename]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[filename] = struct{}{}
	w.mu.Unlock()

	if _, err := w.pipeline.OnRecordingComplete(ctx, filename, 0); err != nil {
		w.logger.Warn("ingest failed",
			logging.String("filename", filename),
			logging.Error(err))
		w.mu.Lock()
		delete(w.seen, filename)
		w.mu.Unlock()
	}
}

func (w *Watcher) loadKnown(ctx context.Context) error {
	memos, err := w.memos.List(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range memos {
		w.seen[m.Filename] = struct{}{}
	}
	return nil
}

func isAudio(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg", ".opus":
		return true
	default:
		return false
	}
}
