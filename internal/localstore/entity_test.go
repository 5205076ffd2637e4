package localstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/localstore"
)

func setupTestStore(t *testing.T) *localstore.Store {
	t.Helper()

	s, err := localstore.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func testRestaurant(id int64) *domain.Restaurant {
	return &domain.Restaurant{
		ID:           id,
		Name:         "Luigi's",
		Neighborhood: "Downtown",
		CuisineType:  "Italian",
	}
}

func TestPut_Get(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	r := testRestaurant(1)
	require.NoError(t, s.Restaurants.Put(ctx, r))

	got, err := s.Restaurants.Get(ctx, localstore.Key(1))
	require.NoError(t, err)
	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.CuisineType, got.CuisineType)
}

func TestPut_UpsertIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Restaurants.Put(ctx, testRestaurant(1)))

	// Second put with the same ID updates in place.
	updated := testRestaurant(1)
	updated.Name = "Luigi's Trattoria"
	require.NoError(t, s.Restaurants.Put(ctx, updated))

	all, err := s.Restaurants.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "upsert must leave exactly one record")
	assert.Equal(t, "Luigi's Trattoria", all[0].Name)
}

func TestGet_Miss(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Restaurants.Get(context.Background(), localstore.Key(42))
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestGetAll_EmptyNamespace(t *testing.T) {
	s := setupTestStore(t)

	all, err := s.Restaurants.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestQueryByIndex_NonUnique(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Three reviews, two for restaurant 5.
	for i, rid := range []int64{5, 5, 9} {
		require.NoError(t, s.Reviews.Put(ctx, &domain.Review{
			LocalID:      int64(i + 1),
			RestaurantID: rid,
			Name:         "Al",
			Rating:       4,
			CreatedAt:    time.Now(),
		}))
	}

	reviews, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(5))
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	for _, r := range reviews {
		assert.Equal(t, int64(5), r.RestaurantID)
	}

	none, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(7))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPut_IndexFollowsUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	review := &domain.Review{LocalID: 1, RestaurantID: 5, Name: "Al", Rating: 4}
	require.NoError(t, s.Reviews.Put(ctx, review))

	// Re-point the review at another restaurant; the stale index entry
	// must disappear.
	review.RestaurantID = 9
	require.NoError(t, s.Reviews.Put(ctx, review))

	old, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(5))
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(9))
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestLast(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Reviews.Last(ctx)
	require.ErrorIs(t, err, localstore.ErrNotFound)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Reviews.Put(ctx, &domain.Review{
			LocalID:      i,
			RestaurantID: 5,
			Name:         "Al",
			Rating:       int(i),
		}))
	}

	last, err := s.Reviews.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last.LocalID)
}

func TestDelete_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Reviews.Put(ctx, &domain.Review{LocalID: 1, RestaurantID: 5}))
	require.NoError(t, s.Reviews.Delete(ctx, localstore.Key(1)))

	_, err := s.Reviews.Get(ctx, localstore.Key(1))
	require.ErrorIs(t, err, localstore.ErrNotFound)

	// Index entry must be gone too.
	reviews, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(5))
	require.NoError(t, err)
	assert.Empty(t, reviews)

	// Deleting again is not an error.
	require.NoError(t, s.Reviews.Delete(ctx, localstore.Key(1)))
}

func TestNextLocalID_Monotonic(t *testing.T) {
	s := setupTestStore(t)

	first, err := s.NextLocalID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), first, "surrogate IDs start at 1")

	second, err := s.NextLocalID()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestDegradedStore_NoOps(t *testing.T) {
	// Point the store at a path that cannot be created.
	s := localstore.OpenOrDegrade("/dev/null/not-a-dir", nil)
	t.Cleanup(func() { _ = s.Close() })

	require.False(t, s.Available())
	ctx := context.Background()

	// Writes are dropped silently.
	require.NoError(t, s.Restaurants.Put(ctx, testRestaurant(1)))

	// Reads resolve empty rather than raising.
	_, err := s.Restaurants.Get(ctx, localstore.Key(1))
	require.ErrorIs(t, err, localstore.ErrNotFound)

	all, err := s.Restaurants.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	reviews, err := s.Reviews.QueryByIndex(ctx, "restaurant", localstore.Key(1))
	require.NoError(t, err)
	assert.Empty(t, reviews)

	_, err = s.Reviews.Last(ctx)
	require.ErrorIs(t, err, localstore.ErrNotFound)

	id, err := s.NextLocalID()
	require.NoError(t, err)
	assert.Zero(t, id)
}
