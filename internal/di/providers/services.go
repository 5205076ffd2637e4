package providers

import (
	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/remote"
)

// ProvideRemoteClient provides the upstream catalog API client.
func ProvideRemoteClient(i do.Injector) (*remote.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return remote.New(cfg.Upstream.BaseURL, log.Logger, remote.Options{
		Timeout: cfg.Upstream.Timeout,
		RPS:     cfg.Upstream.RPS,
		Burst:   cfg.Upstream.Burst,
	}), nil
}

// ProvideCatalogService provides the data access layer. Its sync registrar
// is wired by the sync queue provider to break the construction cycle
// between the two.
func ProvideCatalogService(i do.Injector) (*catalog.Service, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*remote.Client](i)
	log := do.MustInvoke[*logger.Logger](i)

	return catalog.NewService(storeHandle.Store, client, log.Logger), nil
}
