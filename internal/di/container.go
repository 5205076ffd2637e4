// Package di provides dependency injection configuration for the DineAtlas
// client daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/di/providers"
	"github.com/dineatlas/dineatlas-client/internal/gateway"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/remote"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCacheStore)

	// Upstream and data access
	do.Provide(injector, providers.ProvideRemoteClient)
	do.Provide(injector, providers.ProvideCatalogService)

	// Gateway
	do.Provide(injector, providers.ProvideWorker)
	do.Provide(injector, providers.ProvideManifestWatcher)

	// Workers
	do.Provide(injector, providers.ProvideSyncQueue)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services, triggering lazy construction in
// dependency order.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.CacheStoreHandle](injector)
	_ = do.MustInvoke[*remote.Client](injector)
	_ = do.MustInvoke[*catalog.Service](injector)
	_ = do.MustInvoke[*gateway.Worker](injector)
	_ = do.MustInvoke[*providers.ManifestWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SyncQueueHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
