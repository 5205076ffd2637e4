package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/remote"
	"github.com/dineatlas/dineatlas-client/internal/syncq"
)

// SyncQueueHandle wraps the sync queue with its worker context.
type SyncQueueHandle struct {
	*syncq.Queue
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SyncQueueHandle) Shutdown() error {
	h.cancel()
	h.Stop()
	return nil
}

// ProvideSyncQueue provides the background review sync queue with its
// worker running. The catalog service gets the queue as its registrar
// here, completing the two-way wiring between them.
func ProvideSyncQueue(i do.Injector) (*SyncQueueHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*remote.Client](i)
	catalogService := do.MustInvoke[*catalog.Service](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	queue := syncq.New(storeHandle.Store, client, catalogService, sseHandle.Manager, log.Logger, syncq.Options{
		RetryInterval: cfg.Sync.RetryInterval,
	})
	catalogService.SetSyncRegistrar(queue)

	ctx, cancel := context.WithCancel(context.Background())
	go queue.Start(ctx)

	return &SyncQueueHandle{
		Queue:  queue,
		cancel: cancel,
	}, nil
}
