// Package gateway is the caching intermediary between the page and the
// upstream catalog origin. It owns a versioned static asset cache and an
// unversioned image cache, runs the install/activate lifecycle over them,
// and routes page traffic cache-first with network fallback.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/gateway/cachestore"
)

// State is the gateway worker lifecycle state.
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// Cache naming. Static caches carry the asset generation in their name so a
// whole generation can be swept at activation; the image cache is shared
// across generations and never swept.
const (
	staticCachePrefix = "dineatlas-static-v"
	imageCacheName    = "dineatlas-images"
)

// StaticCacheName returns the cache name for an asset generation.
func StaticCacheName(version int) string {
	return fmt.Sprintf("%s%d", staticCachePrefix, version)
}

// Worker owns the response caches and their lifecycle.
type Worker struct {
	cache       *cachestore.Store
	upstream    *url.URL
	client      *http.Client
	proxy       *httputil.ReverseProxy
	imagePrefix string
	logger      *slog.Logger

	mu              sync.RWMutex
	state           State
	version         int
	manifest        map[string]struct{}
	waitingVersion  int
	waitingManifest map[string]struct{}
	onWaiting       func(version int)
}

// Options configures a Worker beyond its caches and origin.
type Options struct {
	// Manifest lists the asset paths to precache.
	Manifest []string
	// Version names the asset generation.
	Version int
	// ImagePrefix is the URL path prefix routed through the image cache.
	// Defaults to /img/.
	ImagePrefix string
}

// NewWorker creates a worker for the given upstream origin.
func NewWorker(cache *cachestore.Store, upstreamURL string, opts Options, logger *slog.Logger) (*Worker, error) {
	parsed, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	prefix := opts.ImagePrefix
	if prefix == "" {
		prefix = "/img/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Worker{
		cache:       cache,
		upstream:    parsed,
		client:      &http.Client{Timeout: 30 * time.Second},
		proxy:       httputil.NewSingleHostReverseProxy(parsed),
		imagePrefix: prefix,
		logger:      logger,
		state:       StateInstalling,
		version:     opts.Version,
		manifest:    manifestSet(opts.Manifest),
	}, nil
}

// ImagePrefix returns the URL path prefix served from the image cache.
func (w *Worker) ImagePrefix() string {
	return w.imagePrefix
}

// SetWaitingListener registers a callback invoked whenever a freshly
// installed asset generation enters Waiting. Pages use the announcement to
// offer an immediate update via skipWaiting.
func (w *Worker) SetWaitingListener(fn func(version int)) {
	w.mu.Lock()
	w.onWaiting = fn
	w.mu.Unlock()
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Version returns the active asset generation.
func (w *Worker) Version() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// Install precaches the full manifest into this generation's static cache.
// Any single fetch failure aborts the install and the worker never reaches
// Active; a partial asset set would be worse than none.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	w.state = StateInstalling
	version := w.version
	paths := make([]string, 0, len(w.manifest))
	for p := range w.manifest {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	if err := w.precache(ctx, StaticCacheName(version), paths); err != nil {
		return fmt.Errorf("install v%d: %w", version, err)
	}

	w.logger.Info("install complete",
		"version", version,
		"assets", len(paths),
	)
	return nil
}

// Activate sweeps every static cache from another generation and marks the
// worker active. The image cache is left alone.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	w.state = StateActivating
	current := StaticCacheName(w.version)
	w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := w.cache.Names()
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	for _, name := range names {
		if !strings.HasPrefix(name, staticCachePrefix) || name == current {
			continue
		}
		if err := w.cache.DeleteCache(name); err != nil {
			return fmt.Errorf("evict stale cache: %w", err)
		}
		w.logger.Info("evicted stale asset generation", "cache", name)
	}

	w.mu.Lock()
	w.state = StateActive
	w.mu.Unlock()

	w.logger.Info("gateway worker active", "cache", current)
	return nil
}

// InstallNext precaches a new asset generation while the current one keeps
// serving. On success the worker moves to Waiting; the new generation takes
// over on SkipWaiting.
func (w *Worker) InstallNext(ctx context.Context, manifest []string) error {
	w.mu.Lock()
	next := w.version + 1
	if w.waitingVersion != 0 {
		next = w.waitingVersion + 1
	}
	w.mu.Unlock()

	if err := w.precache(ctx, StaticCacheName(next), manifest); err != nil {
		return fmt.Errorf("install v%d: %w", next, err)
	}

	w.mu.Lock()
	w.waitingVersion = next
	w.waitingManifest = manifestSet(manifest)
	w.state = StateWaiting
	notify := w.onWaiting
	w.mu.Unlock()

	w.logger.Info("next asset generation installed, waiting",
		"version", next,
		"assets", len(manifest),
	)

	if notify != nil {
		notify(next)
	}
	return nil
}

// SkipWaiting promotes a waiting generation immediately: the waiting cache
// becomes current and stale generations are swept. A no-op when nothing is
// waiting.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	if w.waitingVersion == 0 {
		w.mu.Unlock()
		return nil
	}
	w.version = w.waitingVersion
	w.manifest = w.waitingManifest
	w.waitingVersion = 0
	w.waitingManifest = nil
	w.mu.Unlock()

	return w.Activate(ctx)
}

// precache fetches every path from the upstream origin into the named
// cache. The first failure aborts the whole run.
func (w *Worker) precache(ctx context.Context, cacheName string, paths []string) error {
	for _, path := range paths {
		entry, err := w.fetch(ctx, path)
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		if entry.Status != http.StatusOK {
			return fmt.Errorf("precache %s: upstream status %d", path, entry.Status)
		}
		if err := w.cache.Put(cacheName, path, entry); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
	}
	return nil
}

// fetch retrieves one path from the upstream origin as a cache entry.
func (w *Worker) fetch(ctx context.Context, path string) (*cachestore.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.upstream.JoinPath(path).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	headers := make(map[string]string)
	for _, h := range []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"} {
		if v := resp.Header.Get(h); v != "" {
			headers[h] = v
		}
	}

	return &cachestore.Entry{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    body,
	}, nil
}

// inManifest reports whether the path belongs to the active asset manifest.
func (w *Worker) inManifest(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.manifest[path]
	return ok
}

// staticCache returns the active static cache name.
func (w *Worker) staticCache() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return StaticCacheName(w.version)
}

func manifestSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
