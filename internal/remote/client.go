// Package remote provides the thin HTTP client against the upstream
// catalog REST API. It knows nothing about the local store; the catalog
// service layers caching and offline fallback on top of it.
package remote

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/ratelimit"
)

const (
	// Outbound rate limit defaults.
	defaultRPS   = 10.0
	defaultBurst = 20

	// HTTP client settings
	defaultTimeout = 30 * time.Second
)

// Client is a rate-limited catalog API client.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// New creates a new catalog client for the given base URL.
func New(baseURL string, logger *slog.Logger, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RPS == 0 {
		opts.RPS = defaultRPS
	}
	if opts.Burst == 0 {
		opts.Burst = defaultBurst
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL: baseURL,
		limiter: ratelimit.New(opts.RPS, opts.Burst),
		logger:  logger,
	}
}

// ListRestaurants fetches the full restaurant collection.
func (c *Client) ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/restaurants", nil, nil)
	if err != nil {
		return nil, err
	}

	var restaurants []*domain.Restaurant
	if err := json.Unmarshal(body, &restaurants); err != nil {
		return nil, fmt.Errorf("decode restaurants: %w", err)
	}
	return restaurants, nil
}

// GetRestaurant fetches a single restaurant by server ID.
// Returns ErrNotFound on a 404 or an empty body.
func (c *Client) GetRestaurant(ctx context.Context, id int64) (*domain.Restaurant, error) {
	path := fmt.Sprintf("/restaurants/%d/", id)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNotFound
	}

	var restaurant domain.Restaurant
	if err := json.Unmarshal(body, &restaurant); err != nil {
		return nil, fmt.Errorf("decode restaurant: %w", err)
	}
	if restaurant.ID == 0 {
		return nil, ErrNotFound
	}
	return &restaurant, nil
}

// SetFavorite flips the favorite flag on the server.
// Succeeds only on HTTP 200.
func (c *Client) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	path := fmt.Sprintf("/restaurants/%d/", id)
	query := url.Values{"is_favorite": {strconv.FormatBool(favorite)}}

	_, err := c.doRequest(ctx, http.MethodPut, path, query, nil)
	return err
}

// ListReviews fetches all reviews for one restaurant.
func (c *Client) ListReviews(ctx context.Context, restaurantID int64) ([]*domain.Review, error) {
	query := url.Values{"restaurant_id": {strconv.FormatInt(restaurantID, 10)}}
	body, err := c.doRequest(ctx, http.MethodGet, "/reviews/", query, nil)
	if err != nil {
		return nil, err
	}

	var reviews []*domain.Review
	if err := json.Unmarshal(body, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

// PostReview submits a review and returns the server's copy, which carries
// the assigned ID. The surrogate LocalID is never sent upstream.
func (c *Client) PostReview(ctx context.Context, review *domain.Review) (*domain.Review, error) {
	payload := struct {
		RestaurantID int64     `json:"restaurant_id"`
		Name         string    `json:"name"`
		Rating       int       `json:"rating"`
		Comments     string    `json:"comments"`
		CreatedAt    time.Time `json:"createdAt"`
	}{
		RestaurantID: review.RestaurantID,
		Name:         review.Name,
		Rating:       review.Rating,
		Comments:     review.Comments,
		CreatedAt:    review.CreatedAt,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode review: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/reviews/", nil, data)
	if err != nil {
		return nil, err
	}

	var created domain.Review
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode created review: %w", err)
	}
	if created.ID == 0 {
		return nil, fmt.Errorf("%w: server did not assign a review id", ErrServer)
	}
	return &created, nil
}

// doRequest executes an HTTP request with rate limiting and maps response
// statuses to sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug("upstream request",
			"method", method,
			"path", path,
		)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
