package api

import (
	"encoding/json/v2"
	"net/http"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	apperrors "github.com/dineatlas/dineatlas-client/internal/errors"
	"github.com/dineatlas/dineatlas-client/internal/http/response"
)

// handleListReviews answers GET /reviews?restaurant_id= with provenance.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := parseID(r.URL.Query().Get("restaurant_id"))
	if err != nil {
		response.BadRequest(w, "restaurant_id is required", s.logger)
		return
	}

	result, err := s.catalog.FetchReviewsByRestaurantID(r.Context(), restaurantID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, result, s.logger)
}

// CreateReviewRequest is the body of POST /reviews.
type CreateReviewRequest struct {
	RestaurantID int64  `json:"restaurant_id" validate:"required,gt=0"`
	Name         string `json:"name"          validate:"required,max=100"`
	Rating       int    `json:"rating"        validate:"required,gte=1,lte=5"`
	Comments     string `json:"comments"      validate:"required"`
}

// ReviewResponse is what the page gets back from a review submission. The
// pending flag tells the controller to render the offline marker.
type ReviewResponse struct {
	Review  *domain.Review `json:"review"`
	Pending bool           `json:"pending"`
}

// handleCreateReview submits a review. When the upstream accepts it, the
// response is 201 with the server-assigned id. When the daemon is offline,
// the review is queued and the response is 202 with the pending flag set;
// the page renders it immediately with the offline marker.
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	review, err := s.catalog.AddReview(r.Context(), &domain.Review{
		RestaurantID: req.RestaurantID,
		Name:         req.Name,
		Rating:       req.Rating,
		Comments:     req.Comments,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrPendingSync) {
			response.Accepted(w, ReviewResponse{Review: review, Pending: true}, s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, ReviewResponse{Review: review}, s.logger)
}
