package api_test

import (
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineatlas/dineatlas-client/internal/api"
	"github.com/dineatlas/dineatlas-client/internal/catalog"
	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/gateway"
	"github.com/dineatlas/dineatlas-client/internal/gateway/cachestore"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
	"github.com/dineatlas/dineatlas-client/internal/remote"
	"github.com/dineatlas/dineatlas-client/internal/sse"
	"github.com/dineatlas/dineatlas-client/internal/syncq"
)

// testDaemon wires the full daemon against a fake upstream.
type testDaemon struct {
	server   *api.Server
	store    *localstore.Store
	queue    *syncq.Queue
	manager  *sse.Manager
	upstream *httptest.Server
	up       atomic.Bool
}

func setupDaemon(t *testing.T) *testDaemon {
	t.Helper()

	d := &testDaemon{}
	d.up.Store(true)

	restaurants := []*domain.Restaurant{
		{ID: 1, Name: "Luigi's", Neighborhood: "Downtown", CuisineType: "Italian"},
		{ID: 2, Name: "Casa Mia", Neighborhood: "Midtown", CuisineType: "Mexican"},
	}
	var nextReview atomic.Int64
	nextReview.Store(500)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /restaurants", func(w http.ResponseWriter, r *http.Request) {
		_ = json.MarshalWrite(w, restaurants)
	})
	mux.HandleFunc("GET /restaurants/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "1" {
			_ = json.MarshalWrite(w, restaurants[0])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("PUT /restaurants/{id}/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.MarshalWrite(w, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /reviews/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.MarshalWrite(w, []*domain.Review{})
	})
	mux.HandleFunc("POST /reviews/", func(w http.ResponseWriter, r *http.Request) {
		if !d.up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var review domain.Review
		_ = json.UnmarshalRead(r.Body, &review)
		review.ID = nextReview.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.MarshalWrite(w, &review)
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>shell</html>"))
	})

	d.upstream = httptest.NewServer(mux)
	t.Cleanup(d.upstream.Close)

	logger := slog.New(slog.DiscardHandler)

	store, err := localstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	d.store = store

	client := remote.New(d.upstream.URL, nil, remote.Options{
		Timeout: 5 * time.Second,
		RPS:     1000,
		Burst:   1000,
	})

	catalogService := catalog.NewService(store, client, logger)

	cache, err := cachestore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	worker, err := gateway.NewWorker(cache, d.upstream.URL, gateway.Options{
		Manifest: []string{"/"},
		Version:  1,
	}, logger)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, worker.Install(ctx))
	require.NoError(t, worker.Activate(ctx))

	manager := sse.NewManager(logger)
	d.manager = manager
	d.queue = syncq.New(store, client, catalogService, manager, logger, syncq.Options{RetryInterval: time.Hour})
	catalogService.SetSyncRegistrar(d.queue)

	d.server = api.NewServer(catalogService, worker, d.queue, sse.NewHandler(manager, logger), logger)
	return d
}

func (d *testDaemon) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	d.server.ServeHTTP(rec, r)
	return rec
}

type envelope struct {
	Data    jsontext.Value  `json:"data"`
	Error   string          `json:"error"`
	Success bool            `json:"success"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if data != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestListRestaurants_ReportsSource(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/restaurants/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result catalog.RestaurantsResult
	env := decodeEnvelope(t, rec, &result)
	assert.True(t, env.Success)
	assert.Equal(t, catalog.SourceNetwork, result.Source)
	assert.Len(t, result.Restaurants, 2)

	// Second request is served from the now-populated store.
	rec = d.do(t, http.MethodGet, "/api/v1/restaurants/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &result)
	assert.Equal(t, catalog.SourceLocal, result.Source)
}

func TestListRestaurants_Filtered(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/restaurants/?cuisine=Italian", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result catalog.RestaurantsResult
	decodeEnvelope(t, rec, &result)
	require.Len(t, result.Restaurants, 1)
	assert.Equal(t, "Luigi's", result.Restaurants[0].Name)
}

func TestGetRestaurant(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/restaurants/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var restaurant domain.Restaurant
	decodeEnvelope(t, rec, &restaurant)
	assert.Equal(t, "Luigi's", restaurant.Name)

	rec = d.do(t, http.MethodGet, "/api/v1/restaurants/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = d.do(t, http.MethodGet, "/api/v1/restaurants/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNeighborhoodsAndCuisines(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/restaurants/neighborhoods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var values []string
	decodeEnvelope(t, rec, &values)
	assert.Equal(t, []string{"Downtown", "Midtown"}, values)

	rec = d.do(t, http.MethodGet, "/api/v1/restaurants/cuisines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &values)
	assert.Equal(t, []string{"Italian", "Mexican"}, values)
}

func TestSetFavorite(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodPut, "/api/v1/restaurants/1/favorite", `{"is_favorite":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The optimistic write landed in the store.
	stored, err := d.store.Restaurants.Get(context.Background(), localstore.Key(1))
	if err == nil {
		assert.True(t, stored.IsFavorite)
	}
}

func TestCreateReview_Online(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodPost, "/api/v1/reviews/",
		`{"restaurant_id":1,"name":"Al","rating":5,"comments":"Great"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.ReviewResponse
	decodeEnvelope(t, rec, &resp)
	assert.False(t, resp.Pending)
	assert.NotZero(t, resp.Review.ID)
}

func TestCreateReview_OfflineQueues(t *testing.T) {
	d := setupDaemon(t)
	d.up.Store(false)

	rec := d.do(t, http.MethodPost, "/api/v1/reviews/",
		`{"restaurant_id":1,"name":"Al","rating":3,"comments":"Queued"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.ReviewResponse
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Pending)
	assert.NotZero(t, resp.Review.LocalID)
	assert.Zero(t, resp.Review.ID)

	pending, err := d.queue.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateReview_ValidationFails(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodPost, "/api/v1/reviews/",
		`{"restaurant_id":1,"name":"Al","rating":9,"comments":"Too enthusiastic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = d.do(t, http.MethodPost, "/api/v1/reviews/", `{"rating":4}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReviews_RequiresRestaurantID(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/reviews/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = d.do(t, http.MethodGet, "/api/v1/reviews/?restaurant_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result catalog.ReviewsResult
	decodeEnvelope(t, rec, &result)
	assert.Equal(t, catalog.SourceNetwork, result.Source)
	assert.Empty(t, result.Reviews)
}

func TestWorkerState(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/api/v1/worker/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state api.WorkerStateResponse
	decodeEnvelope(t, rec, &state)
	assert.Equal(t, string(gateway.StateActive), state.State)
	assert.Equal(t, 1, state.Version)
	assert.Zero(t, state.Pending)
}

func TestWorkerMessage(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodPost, "/api/v1/worker/messages", `{"action":"skipWaiting"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = d.do(t, http.MethodPost, "/api/v1/worker/messages", `{"action":"sync"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = d.do(t, http.MethodPost, "/api/v1/worker/messages", `{"action":"selfDestruct"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkerMessage_SyncWithReviewRegisters(t *testing.T) {
	d := setupDaemon(t)
	d.up.Store(false)

	rec := d.do(t, http.MethodPost, "/api/v1/worker/messages",
		`{"action":"sync","review":{"restaurant_id":1,"name":"Al","rating":4,"comments":"Drafted offline"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.ReviewResponse
	decodeEnvelope(t, rec, &resp)
	assert.True(t, resp.Pending)
	assert.NotZero(t, resp.Review.LocalID)
	assert.Zero(t, resp.Review.ID)

	// Registered with the queue and persisted under its surrogate id.
	pending, err := d.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Drafted offline", pending[0].Review.Comments)

	stored, err := d.store.Reviews.Get(context.Background(), localstore.Key(resp.Review.LocalID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.RestaurantID)
}

func TestWorkerMessage_SyncWithInvalidReview(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodPost, "/api/v1/worker/messages",
		`{"action":"sync","review":{"restaurant_id":1,"name":"Al","rating":9,"comments":"Off the scale"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkerMessage_VisibilityUpdatesClient(t *testing.T) {
	d := setupDaemon(t)

	client, err := d.manager.Connect(false)
	require.NoError(t, err)

	rec := d.do(t, http.MethodPost, "/api/v1/worker/messages",
		`{"action":"visibility","client_id":"`+client.ID+`","visible":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, client.Visible, "foregrounded tab now eligible for post_success")

	rec = d.do(t, http.MethodPost, "/api/v1/worker/messages", `{"action":"visibility"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticShellServedFromCache(t *testing.T) {
	d := setupDaemon(t)

	// Install precached "/", so the shell serves even with the origin gone.
	d.upstream.Close()

	rec := d.do(t, http.MethodGet, "/app/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shell")
}

func TestHealth(t *testing.T) {
	d := setupDaemon(t)

	rec := d.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
