package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/gateway/cachestore"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle
// management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the page event broadcaster.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the local store with shutdown capability.
type StoreHandle struct {
	*localstore.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the local mirror store. When the database cannot be
// opened the daemon keeps running network-primary on a degraded store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	store := localstore.OpenOrDegrade(cfg.StorePath(), log.Logger)
	return &StoreHandle{Store: store}, nil
}

// CacheStoreHandle wraps the response cache store with shutdown capability.
type CacheStoreHandle struct {
	*cachestore.Store
}

// Shutdown implements do.Shutdownable.
func (h *CacheStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideCacheStore provides the response cache database.
func ProvideCacheStore(i do.Injector) (*CacheStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	cache, err := cachestore.Open(cfg.CachePath(), log.Logger)
	if err != nil {
		return nil, err
	}
	return &CacheStoreHandle{Store: cache}, nil
}
