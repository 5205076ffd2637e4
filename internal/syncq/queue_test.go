package syncq

import (
	"context"
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

	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
	"github.com/dineatlas/dineatlas-client/internal/remote"
	"github.com/dineatlas/dineatlas-client/internal/sse"
)

// flakyUpstream accepts review posts only when up.
type flakyUpstream struct {
	srv    *httptest.Server
	up     atomic.Bool
	posted atomic.Int64
	nextID atomic.Int64
}

func newFlakyUpstream(t *testing.T) *flakyUpstream {
	t.Helper()

	u := &flakyUpstream{}
	u.nextID.Store(500)

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !u.up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var review domain.Review
		_ = json.UnmarshalRead(r.Body, &review)
		review.ID = u.nextID.Add(1)
		u.posted.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.MarshalWrite(w, &review)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

// recordingCompleter records CompleteSync calls.
type recordingCompleter struct {
	calls [][2]int64
}

func (r *recordingCompleter) CompleteSync(_ context.Context, localID, serverID int64) error {
	r.calls = append(r.calls, [2]int64{localID, serverID})
	return nil
}

func setupQueue(t *testing.T, u *flakyUpstream) (*Queue, *localstore.Store, *recordingCompleter) {
	t.Helper()

	store, err := localstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := remote.New(u.srv.URL, nil, remote.Options{
		Timeout: 5 * time.Second,
		RPS:     1000,
		Burst:   1000,
	})
	completer := &recordingCompleter{}
	q := New(store, client, completer, nil, slog.New(slog.DiscardHandler), Options{
		RetryInterval: time.Hour, // tests drive drains explicitly
	})
	return q, store, completer
}

func pendingReview(localID int64) *domain.Review {
	return &domain.Review{
		LocalID:      localID,
		RestaurantID: 5,
		Name:         "Al",
		Rating:       4,
		Comments:     "Written offline",
		CreatedAt:    time.Now(),
	}
}

func TestEnqueue_PersistsTaggedEntry(t *testing.T) {
	u := newFlakyUpstream(t)
	q, store, _ := setupQueue(t, u)
	ctx := context.Background()

	tag, err := q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tag, "review_"), "tag %q", tag)

	entry, err := store.PendingReviews.Get(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Review.LocalID)
	assert.Zero(t, entry.Attempts)
}

func TestEnqueue_TagsAreUnique(t *testing.T) {
	u := newFlakyUpstream(t)
	q, _, _ := setupQueue(t, u)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := int64(1); i <= 20; i++ {
		tag, err := q.Enqueue(ctx, pendingReview(i))
		require.NoError(t, err)
		_, dup := seen[tag]
		require.False(t, dup, "duplicate tag %q", tag)
		seen[tag] = struct{}{}
	}
}

func TestDrain_DeliversAndDequeues(t *testing.T) {
	u := newFlakyUpstream(t)
	u.up.Store(true)
	q, _, completer := setupQueue(t, u)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)

	q.drain(ctx)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "delivered entry must leave the queue")

	require.Len(t, completer.calls, 1)
	assert.Equal(t, int64(1), completer.calls[0][0])
	assert.Equal(t, int64(501), completer.calls[0][1])
}

func TestDrain_FailureKeepsEntryQueued(t *testing.T) {
	u := newFlakyUpstream(t)
	q, store, completer := setupQueue(t, u)
	ctx := context.Background()

	tag, err := q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)

	q.drain(ctx)
	q.drain(ctx)

	entry, err := store.PendingReviews.Get(ctx, tag)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.Empty(t, completer.calls)

	// Once the upstream recovers the entry goes through.
	u.up.Store(true)
	q.drain(ctx)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, completer.calls, 1)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	u := newFlakyUpstream(t)
	dir := t.TempDir()
	ctx := context.Background()

	store, err := localstore.Open(dir, nil)
	require.NoError(t, err)

	client := remote.New(u.srv.URL, nil, remote.Options{Timeout: 5 * time.Second, RPS: 1000, Burst: 1000})
	q := New(store, client, &recordingCompleter{}, nil, slog.New(slog.DiscardHandler), Options{RetryInterval: time.Hour})

	_, err = q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A new process: fresh store handle and queue over the same directory.
	store, err = localstore.Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	completer := &recordingCompleter{}
	q = New(store, client, completer, nil, slog.New(slog.DiscardHandler), Options{RetryInterval: time.Hour})

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1, "queued entry survives restart")

	u.up.Store(true)
	q.drain(ctx)

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, completer.calls, 1)
}

func TestWorker_WakeTriggersDelivery(t *testing.T) {
	u := newFlakyUpstream(t)
	u.up.Store(true)
	q, _, _ := setupQueue(t, u)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Start(ctx)

	_, err := q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending, err := q.Pending(context.Background())
		return err == nil && len(pending) == 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	q.Stop()
}

func TestDeliver_AnnouncesToVisiblePages(t *testing.T) {
	u := newFlakyUpstream(t)
	u.up.Store(true)

	store, err := localstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manager := sse.NewManager(slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Start(ctx)

	page, err := manager.Connect(true)
	require.NoError(t, err)

	client := remote.New(u.srv.URL, nil, remote.Options{Timeout: 5 * time.Second, RPS: 1000, Burst: 1000})
	q := New(store, client, &recordingCompleter{}, manager, slog.New(slog.DiscardHandler), Options{RetryInterval: time.Hour})

	_, err = q.Enqueue(ctx, pendingReview(1))
	require.NoError(t, err)
	q.drain(ctx)

	select {
	case event := <-page.EventChan:
		require.Equal(t, sse.EventPostSuccess, event.Type)
		data, ok := event.Data.(sse.PostSuccessData)
		require.True(t, ok)
		assert.Equal(t, int64(1), data.LocalID)
		assert.Equal(t, int64(501), data.ReviewID)
	case <-time.After(5 * time.Second):
		t.Fatal("no post_success event delivered")
	}
}
