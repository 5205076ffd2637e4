package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/dineatlas/dineatlas-client/internal/api"
	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/config"
	"github.com/dineatlas/dineatlas-client/internal/gateway"
	"github.com/dineatlas/dineatlas-client/internal/logger"
	"github.com/dineatlas/dineatlas-client/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the daemon's HTTP server, listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	catalogService := do.MustInvoke[*catalog.Service](i)
	worker := do.MustInvoke[*gateway.Worker](i)
	queueHandle := do.MustInvoke[*SyncQueueHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, log.Logger)
	apiServer := api.NewServer(catalogService, worker, queueHandle.Queue, sseHandler, log.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
