package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces the write bursts editors and deploy scripts
// produce when rewriting the manifest.
const debounceInterval = 500 * time.Millisecond

// ManifestWatcher watches the precache manifest file and installs the next
// asset generation into Waiting whenever it changes. Activation still goes
// through SkipWaiting, so a deploy never yanks assets out from under open
// pages.
type ManifestWatcher struct {
	worker  *Worker
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewManifestWatcher creates a watcher for the manifest at path. The watch
// is placed on the parent directory so atomic rename-into-place updates are
// seen too.
func NewManifestWatcher(worker *Worker, path string, logger *slog.Logger) (*ManifestWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch manifest dir: %w", err)
	}

	return &ManifestWatcher{
		worker:  worker,
		path:    filepath.Clean(path),
		watcher: fsw,
		logger:  logger,
	}, nil
}

// Start blocks processing filesystem events until the context is cancelled.
func (m *ManifestWatcher) Start(ctx context.Context) {
	m.logger.Info("watching precache manifest", "path", m.path)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			m.reinstall(ctx)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("manifest watch error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// Stop releases the underlying filesystem watch.
func (m *ManifestWatcher) Stop() error {
	return m.watcher.Close()
}

// reinstall reloads the manifest and stages the next asset generation.
func (m *ManifestWatcher) reinstall(ctx context.Context) {
	manifest, err := LoadManifest(m.path)
	if err != nil {
		m.logger.Warn("manifest reload failed", "error", err)
		return
	}

	m.logger.Info("manifest changed, installing next generation",
		"assets", len(manifest),
	)

	if err := m.worker.InstallNext(ctx, manifest); err != nil {
		m.logger.Warn("next generation install failed", "error", err)
	}
}
