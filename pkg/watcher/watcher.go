// Package watcher auto-ingests documents dropped into a watched
// directory: each created or modified file becomes its own session.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/papercomputeco/folio/pkg/extract"
	"github.com/papercomputeco/folio/pkg/retrieval"
)

// Watcher monitors one directory and indexes supported files through
// the retrieval service. Ingest failures are logged, never fatal.
type Watcher struct {
	dir     string
	service *retrieval.Service
	logger  *zap.Logger
	fsw     *fsnotify.Watcher

	mu       sync.Mutex
	sessions map[string]string // file path -> session id
}

// New creates a watcher over dir.
func New(dir string, service *retrieval.Service, logger *zap.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		service:  service,
		logger:   logger,
		fsw:      fsw,
		sessions: make(map[string]string),
	}, nil
}

// Run watches the directory until the context is canceled. Existing
// files are ingested once at startup, then create and write events
// trigger re-ingestion.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.logger.Info("watching directory for documents", zap.String("dir", w.dir))

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading watch directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.ingest(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ingest(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// ingest indexes one file into its session, reusing the session id for
// a file seen before so rewrites replace rather than accumulate.
func (w *Watcher) ingest(ctx context.Context, path string) {
	filename := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("skipping unreadable file",
			zap.String("file", filename),
			zap.Error(err),
		)
		return
	}

	blocks, err := extract.Extract(filename, data)
	if err != nil {
		w.logger.Debug("skipping file",
			zap.String("file", filename),
			zap.Error(err),
		)
		return
	}
	if len(blocks) == 0 {
		return
	}

	w.mu.Lock()
	id, ok := w.sessions[path]
	w.mu.Unlock()
	if !ok {
		id = w.service.CreateSession()
		w.mu.Lock()
		w.sessions[path] = id
		w.mu.Unlock()
	}

	result, err := w.service.ProcessDocument(ctx, id, retrieval.Document{
		Filename: filename,
		Blocks:   blocks,
	})
	if err != nil {
		w.logger.Warn("auto-ingest failed",
			zap.String("file", filename),
			zap.String("session_id", id),
			zap.Error(err),
		)
		return
	}

	w.logger.Info("auto-ingested document",
		zap.String("file", filename),
		zap.String("session_id", result.SessionID),
		zap.Int("chunks_count", result.ChunksCount),
	)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
