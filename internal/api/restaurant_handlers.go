package api

import (
	"encoding/json/v2"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/http/response"
)

// handleListRestaurants answers the listing query, optionally filtered by
// ?cuisine= and ?neighborhood=. The payload reports whether it came from
// the local store or the network so the page can render accordingly.
func (s *Server) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	cuisine := r.URL.Query().Get("cuisine")
	if cuisine == "" {
		cuisine = domain.FilterAll
	}
	neighborhood := r.URL.Query().Get("neighborhood")
	if neighborhood == "" {
		neighborhood = domain.FilterAll
	}

	result, err := s.catalog.FetchByCuisineAndNeighborhood(r.Context(), cuisine, neighborhood)
	if err != nil {
		s.logger.Error("failed to list restaurants", "error", err)
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, result, s.logger)
}

// handleGetRestaurant answers a single restaurant lookup, local store first.
func (s *Server) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid restaurant ID", s.logger)
		return
	}

	restaurant, err := s.catalog.FetchRestaurantByID(r.Context(), id)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, restaurant, s.logger)
}

// handleListNeighborhoods returns the distinct neighborhoods.
func (s *Server) handleListNeighborhoods(w http.ResponseWriter, r *http.Request) {
	neighborhoods, err := s.catalog.FetchNeighborhoods(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, neighborhoods, s.logger)
}

// handleListCuisines returns the distinct cuisine types.
func (s *Server) handleListCuisines(w http.ResponseWriter, r *http.Request) {
	cuisines, err := s.catalog.FetchCuisines(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, cuisines, s.logger)
}

// FavoriteRequest is the body of PUT /restaurants/{id}/favorite.
type FavoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

// handleSetFavorite flips the favorite flag. The local record updates
// optimistically; a failed upstream write surfaces as an error even though
// the local flag is already flipped.
func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid restaurant ID", s.logger)
		return
	}

	var req FavoriteRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	if req.IsFavorite {
		err = s.catalog.FavoriteRestaurantByID(r.Context(), id)
	} else {
		err = s.catalog.UnfavoriteRestaurantByID(r.Context(), id)
	}
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]any{
		"id":          id,
		"is_favorite": req.IsFavorite,
	}, s.logger)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
