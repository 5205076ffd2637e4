package gateway

import (
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dineatlas/dineatlas-client/internal/gateway/cachestore"
)

// imageVariantRe matches the responsive size suffix on an image path stem.
var imageVariantRe = regexp.MustCompile(`-(?:small|medium|large)$`)

// NormalizeImageKey collapses responsive image variants onto one cache key
// by stripping a trailing -small/-medium/-large from the path stem. Paths
// without a size suffix come back unchanged.
func NormalizeImageKey(p string) string {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	return imageVariantRe.ReplaceAllString(stem, "") + ext
}

// ServeStatic handles /app/* requests: asset paths in the active manifest
// are answered cache-first from the current static generation; everything
// else under /app falls through to the proxy.
func (w *Worker) ServeStatic(rw http.ResponseWriter, r *http.Request) {
	assetPath := "/" + chi.URLParam(r, "*")

	if !w.inManifest(assetPath) {
		w.proxyUpstream(rw, r, assetPath)
		return
	}

	w.serveCacheFirst(rw, r, w.staticCache(), assetPath, assetPath)
}

// ServeImage handles /img/* requests against the shared image cache. The
// cache key is the normalized path so every responsive variant of an image
// occupies a single slot; concurrent misses may each fetch and overwrite
// it, which is harmless because the slot is idempotent per canonical key.
func (w *Worker) ServeImage(rw http.ResponseWriter, r *http.Request) {
	imagePath := w.imagePrefix + chi.URLParam(r, "*")
	w.serveCacheFirst(rw, r, imageCacheName, NormalizeImageKey(imagePath), imagePath)
}

// Proxy passes a request through to the upstream origin untouched.
func (w *Worker) Proxy(rw http.ResponseWriter, r *http.Request) {
	w.proxy.ServeHTTP(rw, r)
}

// serveCacheFirst answers from the named cache when possible, otherwise
// fetches fetchPath from the upstream origin, stores the response under key
// when it is ok, and serves it either way.
func (w *Worker) serveCacheFirst(rw http.ResponseWriter, r *http.Request, cacheName, key, fetchPath string) {
	if entry, err := w.cache.Get(cacheName, key); err == nil {
		w.writeEntry(rw, entry)
		return
	}

	entry, err := w.fetch(r.Context(), fetchPath)
	if err != nil {
		w.logger.Warn("upstream fetch failed",
			"path", fetchPath,
			"error", err,
		)
		http.Error(rw, "upstream unreachable", http.StatusBadGateway)
		return
	}

	if entry.Status == http.StatusOK {
		if err := w.cache.Put(cacheName, key, entry); err != nil {
			w.logger.Warn("failed to cache response",
				"cache", cacheName,
				"key", key,
				"error", err,
			)
		}
	}

	w.writeEntry(rw, entry)
}

func (w *Worker) writeEntry(rw http.ResponseWriter, entry *cachestore.Entry) {
	for k, v := range entry.Headers {
		rw.Header().Set(k, v)
	}
	rw.WriteHeader(entry.Status)
	_, _ = rw.Write(entry.Body)
}

// proxyUpstream rewrites the request to the bare asset path and hands it to
// the reverse proxy.
func (w *Worker) proxyUpstream(rw http.ResponseWriter, r *http.Request, assetPath string) {
	r2 := r.Clone(r.Context())
	r2.URL.Path = assetPath
	r2.URL.RawPath = ""
	w.proxy.ServeHTTP(rw, r2)
}
