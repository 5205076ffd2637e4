// Package catalog provides the data access layer over the local store and
// the upstream catalog API. It decides, per operation, whether a request is
// answered locally or from the network, persists what it learns, and reports
// where each answer came from.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	apperrors "github.com/dineatlas/dineatlas-client/internal/errors"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
	"github.com/dineatlas/dineatlas-client/internal/remote"
)

// Source reports which side answered a query.
type Source string

const (
	SourceNetwork Source = "network"
	SourceLocal   Source = "local"
)

// RestaurantsResult is a restaurant collection together with its provenance.
type RestaurantsResult struct {
	Restaurants []*domain.Restaurant `json:"restaurants"`
	Source      Source               `json:"source"`
}

// ReviewsResult is a review collection together with its provenance.
type ReviewsResult struct {
	Reviews []*domain.Review `json:"reviews"`
	Source  Source           `json:"source"`
}

// SyncRegistrar accepts reviews that could not be posted immediately.
// Implemented by the sync queue; injected via SetSyncRegistrar after
// construction because the queue also depends on this service.
type SyncRegistrar interface {
	Enqueue(ctx context.Context, review *domain.Review) (tag string, err error)
}

// Service orchestrates the local store and the upstream client.
type Service struct {
	store     *localstore.Store
	remote    *remote.Client
	registrar SyncRegistrar
	logger    *slog.Logger
}

// NewService creates a new catalog service.
func NewService(store *localstore.Store, remoteClient *remote.Client, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		remote: remoteClient,
		logger: logger,
	}
}

// SetSyncRegistrar wires the sync queue in after construction.
func (s *Service) SetSyncRegistrar(r SyncRegistrar) {
	s.registrar = r
}

// FetchRestaurants fetches the full collection from the network. Errors
// propagate to the caller; this operation never falls back to the store.
func (s *Service) FetchRestaurants(ctx context.Context) ([]*domain.Restaurant, error) {
	restaurants, err := s.remote.ListRestaurants(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeNetwork, "fetch restaurants")
	}
	return restaurants, nil
}

// FetchRestaurantByID resolves a single restaurant, local store first. A
// local hit returns without touching the network. On a miss the restaurant
// is fetched, persisted, and returned. An id unknown to both sides resolves
// to a not-found error, which is a valid outcome rather than a failure.
func (s *Service) FetchRestaurantByID(ctx context.Context, id int64) (*domain.Restaurant, error) {
	local, err := s.store.Restaurants.Get(ctx, localstore.Key(id))
	if err == nil {
		return local, nil
	}
	if !apperrors.Is(err, localstore.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "read restaurant")
	}

	restaurant, err := s.remote.GetRestaurant(ctx, id)
	if err != nil {
		if apperrors.Is(err, remote.ErrNotFound) {
			return nil, apperrors.NotFound("restaurant does not exist")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeNetwork, "fetch restaurant")
	}

	if err := s.AddRestaurantToDatabase(ctx, restaurant); err != nil {
		s.logger.Warn("failed to persist fetched restaurant",
			"restaurant_id", id,
			"error", err,
		)
	}
	return restaurant, nil
}

// FetchByCuisineAndNeighborhood answers the filtered listing query. When the
// local collection is non-empty it is filtered in place and the network is
// bypassed entirely. When it is empty, the full collection is fetched,
// persisted item by item, and then filtered. domain.FilterAll ("all")
// disables the corresponding filter stage. Server order is preserved.
func (s *Service) FetchByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) (*RestaurantsResult, error) {
	local, err := s.store.Restaurants.GetAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "read restaurants")
	}

	if len(local) > 0 {
		return &RestaurantsResult{
			Restaurants: filterRestaurants(local, cuisine, neighborhood),
			Source:      SourceLocal,
		}, nil
	}

	restaurants, err := s.FetchRestaurants(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range restaurants {
		if err := s.store.Restaurants.Put(ctx, r); err != nil {
			s.logger.Warn("failed to persist restaurant",
				"restaurant_id", r.ID,
				"error", err,
			)
		}
	}

	return &RestaurantsResult{
		Restaurants: filterRestaurants(restaurants, cuisine, neighborhood),
		Source:      SourceNetwork,
	}, nil
}

// FetchNeighborhoods returns the unique neighborhood names across the
// collection, in first-seen order.
func (s *Service) FetchNeighborhoods(ctx context.Context) ([]string, error) {
	result, err := s.FetchByCuisineAndNeighborhood(ctx, domain.FilterAll, domain.FilterAll)
	if err != nil {
		return nil, err
	}
	return uniqueValues(result.Restaurants, func(r *domain.Restaurant) string {
		return r.Neighborhood
	}), nil
}

// FetchCuisines returns the unique cuisine types across the collection, in
// first-seen order.
func (s *Service) FetchCuisines(ctx context.Context) ([]string, error) {
	result, err := s.FetchByCuisineAndNeighborhood(ctx, domain.FilterAll, domain.FilterAll)
	if err != nil {
		return nil, err
	}
	return uniqueValues(result.Restaurants, func(r *domain.Restaurant) string {
		return r.CuisineType
	}), nil
}

// FavoriteRestaurantByID marks a restaurant as a favorite.
func (s *Service) FavoriteRestaurantByID(ctx context.Context, id int64) error {
	return s.setFavorite(ctx, id, true)
}

// UnfavoriteRestaurantByID clears the favorite flag.
func (s *Service) UnfavoriteRestaurantByID(ctx context.Context, id int64) error {
	return s.setFavorite(ctx, id, false)
}

// setFavorite applies the flag optimistically to the local record when one
// exists, then pushes it upstream. The local flag is not rolled back when
// the remote write fails; the record reconverges on the next network read.
func (s *Service) setFavorite(ctx context.Context, id int64, favorite bool) error {
	local, err := s.store.Restaurants.Get(ctx, localstore.Key(id))
	if err == nil {
		local.IsFavorite = favorite
		local.UpdatedAt = time.Now()
		if err := s.store.Restaurants.Put(ctx, local); err != nil {
			s.logger.Warn("failed to persist favorite flag",
				"restaurant_id", id,
				"error", err,
			)
		}
	} else if !apperrors.Is(err, localstore.ErrNotFound) {
		return apperrors.Wrap(err, apperrors.CodeInternal, "read restaurant")
	}

	if err := s.remote.SetFavorite(ctx, id, favorite); err != nil {
		return apperrors.Wrap(err, apperrors.CodeNetwork, "update favorite upstream")
	}
	return nil
}

// FetchReviewsByRestaurantID answers the reviews query for one restaurant,
// local index first. Local hits are sorted by creation time; on a miss the
// network copy is fetched and persisted. An empty result with network
// provenance means the restaurant genuinely has no reviews yet.
func (s *Service) FetchReviewsByRestaurantID(ctx context.Context, restaurantID int64) (*ReviewsResult, error) {
	local, err := s.store.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(restaurantID))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "read reviews")
	}

	if len(local) > 0 {
		sort.Slice(local, func(i, j int) bool {
			return local[i].CreatedAt.Before(local[j].CreatedAt)
		})
		return &ReviewsResult{Reviews: local, Source: SourceLocal}, nil
	}

	reviews, err := s.remote.ListReviews(ctx, restaurantID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeNetwork, "fetch reviews")
	}

	for _, review := range reviews {
		if err := s.AddReviewToDatabase(ctx, review); err != nil {
			s.logger.Warn("failed to persist review",
				"review_id", review.ID,
				"error", err,
			)
		}
	}

	return &ReviewsResult{Reviews: reviews, Source: SourceNetwork}, nil
}

// AddReview submits a new review, network first. On success the server copy
// (carrying the assigned id) is mirrored locally and returned. When the
// post fails, the review is persisted with a fresh surrogate id, handed to
// the sync registrar, and returned alongside ErrPendingSync so the caller
// can render it with the offline marker.
func (s *Service) AddReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}

	created, err := s.remote.PostReview(ctx, review)
	if err == nil {
		if err := s.AddReviewToDatabase(ctx, created); err != nil {
			s.logger.Warn("failed to mirror posted review",
				"review_id", created.ID,
				"error", err,
			)
		}
		s.logger.Info("review posted",
			"restaurant_id", created.RestaurantID,
			"review_id", created.ID,
		)
		return created, nil
	}

	s.logger.Warn("review post failed, queueing for sync",
		"restaurant_id", review.RestaurantID,
		"error", err,
	)

	pending, perr := s.RegisterPendingReview(ctx, review)
	if perr != nil {
		return nil, perr
	}
	return pending, apperrors.PendingSync("review queued for background sync")
}

// RegisterPendingReview persists a review that has not reached the server
// and hands it to the sync registrar. On a degraded store there is nowhere
// to keep the payload, so the call fails outright rather than claiming the
// review was queued while the write is silently dropped.
func (s *Service) RegisterPendingReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	if !s.store.Available() {
		return nil, apperrors.Unavailable("local store unavailable, review cannot be queued")
	}

	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}

	localID, err := s.store.NextLocalID()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "assign local review id")
	}
	review.LocalID = localID
	review.ID = 0

	if err := s.AddReviewToDatabase(ctx, review); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "persist pending review")
	}

	if s.registrar != nil {
		tag, err := s.registrar.Enqueue(ctx, review)
		if err != nil {
			s.logger.Error("failed to register review for sync",
				"local_id", review.LocalID,
				"error", err,
			)
		} else {
			s.logger.Info("review queued for sync",
				"local_id", review.LocalID,
				"tag", tag,
			)
		}
	}

	return review, nil
}

// AddRestaurantToDatabase upserts one restaurant into the local store.
func (s *Service) AddRestaurantToDatabase(ctx context.Context, restaurant *domain.Restaurant) error {
	return s.store.Restaurants.Put(ctx, restaurant)
}

// AddReviewToDatabase upserts one review into the local store. Reviews that
// arrive from the server without a surrogate id get one assigned so every
// stored review has a stable store key.
func (s *Service) AddReviewToDatabase(ctx context.Context, review *domain.Review) error {
	if review.LocalID == 0 {
		localID, err := s.store.NextLocalID()
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "assign local review id")
		}
		review.LocalID = localID
	}
	return s.store.Reviews.Put(ctx, review)
}

// GetLastReviewID returns the surrogate id of the most recently inserted
// review. Used to recover the id assigned to a review that was just written.
func (s *Service) GetLastReviewID(ctx context.Context) (int64, error) {
	last, err := s.store.Reviews.Last(ctx)
	if err != nil {
		if apperrors.Is(err, localstore.ErrNotFound) {
			return 0, apperrors.NotFound("no reviews stored")
		}
		return 0, apperrors.Wrap(err, apperrors.CodeInternal, "read last review")
	}
	return last.LocalID, nil
}

// CompleteSync patches the locally stored review with its server-assigned
// id after a successful background post. The record keeps its surrogate
// key; it now carries both identifiers.
func (s *Service) CompleteSync(ctx context.Context, localID, serverID int64) error {
	review, err := s.store.Reviews.Get(ctx, localstore.Key(localID))
	if err != nil {
		if apperrors.Is(err, localstore.ErrNotFound) {
			return apperrors.NotFoundf("pending review %d not found", localID)
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "read pending review")
	}

	review.ID = serverID
	if err := s.store.Reviews.Put(ctx, review); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "patch synced review")
	}

	s.logger.Info("review sync completed",
		"local_id", localID,
		"review_id", serverID,
	)
	return nil
}

// filterRestaurants applies the two-stage cuisine/neighborhood filter.
// domain.FilterAll skips a stage. Input order is preserved.
func filterRestaurants(restaurants []*domain.Restaurant, cuisine, neighborhood string) []*domain.Restaurant {
	filtered := make([]*domain.Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		if cuisine != domain.FilterAll && r.CuisineType != cuisine {
			continue
		}
		if neighborhood != domain.FilterAll && r.Neighborhood != neighborhood {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// uniqueValues extracts distinct values in first-seen order.
func uniqueValues(restaurants []*domain.Restaurant, value func(*domain.Restaurant) string) []string {
	seen := make(map[string]struct{}, len(restaurants))
	values := make([]string, 0, len(restaurants))
	for _, r := range restaurants {
		v := value(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}
