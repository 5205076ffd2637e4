// Package syncq implements the background sync queue for reviews written
// while the upstream API was unreachable. Entries are persisted in the
// local store, so the queue picks up where it left off after a restart,
// and a worker goroutine retries delivery until the server accepts.
package syncq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	apperrors "github.com/dineatlas/dineatlas-client/internal/errors"
	"github.com/dineatlas/dineatlas-client/internal/id"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
	"github.com/dineatlas/dineatlas-client/internal/remote"
	"github.com/dineatlas/dineatlas-client/internal/sse"
)

// defaultRetryInterval is how long the worker sleeps between delivery
// attempts when the queue is non-empty.
const defaultRetryInterval = 30 * time.Second

// maxTagAttempts bounds tag regeneration on collision. Nanoid collisions
// are vanishingly rare; hitting this bound means the store is corrupt.
const maxTagAttempts = 5

// Completer patches a locally stored review once the server has assigned
// its id. Implemented by the catalog service.
type Completer interface {
	CompleteSync(ctx context.Context, localID, serverID int64) error
}

// Queue is the persistent pending-review registry plus its retry worker.
type Queue struct {
	store     *localstore.Store
	remote    *remote.Client
	completer Completer
	sse       *sse.Manager
	logger    *slog.Logger

	retryInterval time.Duration
	wake          chan struct{}
	wg            sync.WaitGroup
}

// Options configures a Queue.
type Options struct {
	RetryInterval time.Duration
}

// New creates a sync queue. Start must be called to begin delivery.
func New(store *localstore.Store, remoteClient *remote.Client, completer Completer, sseManager *sse.Manager, logger *slog.Logger, opts Options) *Queue {
	if opts.RetryInterval == 0 {
		opts.RetryInterval = defaultRetryInterval
	}

	return &Queue{
		store:         store,
		remote:        remoteClient,
		completer:     completer,
		sse:           sseManager,
		logger:        logger,
		retryInterval: opts.RetryInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Enqueue registers a review for background delivery. The registration tag
// is regenerated on the off chance it collides with a live entry. The
// review must already be persisted under its LocalID.
func (q *Queue) Enqueue(ctx context.Context, review *domain.Review) (string, error) {
	var tag string
	for attempt := 0; ; attempt++ {
		if attempt >= maxTagAttempts {
			return "", apperrors.Internal("could not produce a unique sync tag")
		}

		candidate, err := id.SyncTag()
		if err != nil {
			return "", fmt.Errorf("generate sync tag: %w", err)
		}

		_, err = q.store.PendingReviews.Get(ctx, candidate)
		if apperrors.Is(err, localstore.ErrNotFound) {
			tag = candidate
			break
		}
		if err != nil {
			return "", fmt.Errorf("check sync tag: %w", err)
		}
		// Live entry under this tag; roll again.
	}

	entry := &domain.PendingReview{
		Tag:        tag,
		Review:     *review,
		EnqueuedAt: time.Now(),
	}
	if err := q.store.PendingReviews.Put(ctx, entry); err != nil {
		return "", fmt.Errorf("persist pending review: %w", err)
	}

	q.logger.Info("review registered for sync",
		"tag", tag,
		"local_id", review.LocalID,
	)

	q.Wake()
	return tag, nil
}

// Wake nudges the worker to attempt delivery now instead of waiting for
// the retry tick.
func (q *Queue) Wake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns the queued entries, mostly for inspection and tests.
func (q *Queue) Pending(ctx context.Context) ([]*domain.PendingReview, error) {
	return q.store.PendingReviews.GetAll(ctx)
}

// Start launches the delivery worker. Entries persisted by a previous run
// are in the store already, so the first drain pass replays them. Blocks
// until the context is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	defer q.wg.Done()

	q.logger.Info("sync queue worker starting",
		"retry_interval", q.retryInterval,
	)

	// Replay whatever survived the last shutdown.
	q.drain(ctx)

	ticker := time.NewTicker(q.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.wake:
			q.drain(ctx)

		case <-ticker.C:
			q.drain(ctx)

		case <-ctx.Done():
			q.logger.Info("sync queue worker stopping")
			return
		}
	}
}

// Stop waits for the worker to exit after its context is cancelled.
func (q *Queue) Stop() {
	q.wg.Wait()
}

// drain attempts delivery of every queued entry once. Failed entries stay
// queued with their attempt count bumped; the next wake or tick retries.
func (q *Queue) drain(ctx context.Context) {
	entries, err := q.store.PendingReviews.GetAll(ctx)
	if err != nil {
		q.logger.Error("failed to read sync queue", "error", err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if err := q.deliver(ctx, entry); err != nil {
			entry.Attempts++
			if putErr := q.store.PendingReviews.Put(ctx, entry); putErr != nil {
				q.logger.Error("failed to update sync entry",
					"tag", entry.Tag,
					"error", putErr,
				)
			}
			q.logger.Warn("sync delivery failed, will retry",
				"tag", entry.Tag,
				"attempts", entry.Attempts,
				"error", err,
			)
		}
	}
}

// deliver posts one entry, patches the local record with the assigned id,
// announces the result to visible pages, and removes the entry.
func (q *Queue) deliver(ctx context.Context, entry *domain.PendingReview) error {
	created, err := q.remote.PostReview(ctx, &entry.Review)
	if err != nil {
		return err
	}

	if err := q.completer.CompleteSync(ctx, entry.Review.LocalID, created.ID); err != nil {
		// The server accepted the review; losing the local patch would
		// repost it forever. Log and fall through to dequeue.
		q.logger.Error("failed to patch synced review",
			"tag", entry.Tag,
			"local_id", entry.Review.LocalID,
			"review_id", created.ID,
			"error", err,
		)
	}

	if q.sse != nil {
		q.sse.Emit(sse.NewPostSuccessEvent(entry.Review.LocalID, created.ID, created.RestaurantID))
	}

	if err := q.store.PendingReviews.Delete(ctx, entry.Tag); err != nil {
		return fmt.Errorf("dequeue synced review: %w", err)
	}

	q.logger.Info("queued review delivered",
		"tag", entry.Tag,
		"local_id", entry.Review.LocalID,
		"review_id", created.ID,
	)
	return nil
}
