package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/gateway"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/sse"
)

// ProvideWorker provides the gateway worker and runs its install/activate
// lifecycle. An install failure leaves the worker short of Active; it still
// routes traffic, just without a precached shell, and a later manifest
// change can retry the install.
func ProvideWorker(i do.Injector) (*gateway.Worker, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	cacheHandle := do.MustInvoke[*CacheStoreHandle](i)

	manifest := gateway.DefaultManifest()
	if cfg.Gateway.ManifestPath != "" {
		loaded, err := gateway.LoadManifest(cfg.Gateway.ManifestPath)
		if err != nil {
			log.Warn("manifest unreadable, using built-in asset list", "error", err)
		} else {
			manifest = loaded
		}
	}

	worker, err := gateway.NewWorker(cacheHandle.Store, cfg.Upstream.BaseURL, gateway.Options{
		Manifest:    manifest,
		Version:     cfg.Gateway.CacheVersion,
		ImagePrefix: cfg.Gateway.ImagePathPrefix,
	}, log.Logger)
	if err != nil {
		return nil, err
	}

	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	worker.SetWaitingListener(func(version int) {
		sseHandle.Emit(sse.NewWorkerWaitingEvent(version))
	})

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*6)
	defer cancel()

	if err := worker.Install(ctx); err != nil {
		log.Warn("gateway install failed, serving without precache", "error", err)
		return worker, nil
	}
	if err := worker.Activate(ctx); err != nil {
		log.Warn("gateway activation failed", "error", err)
	}

	return worker, nil
}

// ManifestWatcherHandle wraps the manifest watcher for lifecycle management.
type ManifestWatcherHandle struct {
	watcher *gateway.ManifestWatcher
	cancel  context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ManifestWatcherHandle) Shutdown() error {
	if h.watcher == nil {
		return nil
	}
	h.cancel()
	return h.watcher.Stop()
}

// ProvideManifestWatcher provides the precache manifest watcher when
// enabled. Disabled or unconfigured, the handle is inert.
func ProvideManifestWatcher(i do.Injector) (*ManifestWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Gateway.WatchManifest || cfg.Gateway.ManifestPath == "" {
		return &ManifestWatcherHandle{}, nil
	}

	worker := do.MustInvoke[*gateway.Worker](i)
	watcher, err := gateway.NewManifestWatcher(worker, cfg.Gateway.ManifestPath, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go watcher.Start(ctx)

	return &ManifestWatcherHandle{
		watcher: watcher,
		cancel:  cancel,
	}, nil
}
