package api

import (
	"encoding/json/v2"
	"net/http"
	"time"

	"github.com/dineatlas/dineatlas-client/internal/domain"
	"github.com/dineatlas/dineatlas-client/internal/http/response"
)

// Worker message actions the page may send.
const (
	ActionSkipWaiting = "skipWaiting"
	ActionSync        = "sync"
	ActionVisibility  = "visibility"
)

// WorkerMessage is the body of POST /worker/messages: the page-to-worker
// channel. skipWaiting promotes a staged asset generation; sync registers a
// drafted review for background delivery, or without a payload just nudges
// the queue to retry now; visibility mirrors a tab's visibility state onto
// its event stream client.
type WorkerMessage struct {
	Action   string               `json:"action" validate:"required"`
	Review   *CreateReviewRequest `json:"review,omitempty"`
	ClientID string               `json:"client_id,omitempty"`
	Visible  *bool                `json:"visible,omitempty"`
}

// handleWorkerMessage dispatches a page message to the gateway worker or
// the sync queue.
func (s *Server) handleWorkerMessage(w http.ResponseWriter, r *http.Request) {
	var msg WorkerMessage
	if err := json.UnmarshalRead(r.Body, &msg); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	switch msg.Action {
	case ActionSkipWaiting:
		if s.worker == nil {
			response.BadRequest(w, "No gateway worker running", s.logger)
			return
		}
		if err := s.worker.SkipWaiting(r.Context()); err != nil {
			s.logger.Error("skipWaiting failed", "error", err)
			response.HandleError(w, err, s.logger)
			return
		}
		response.Success(w, map[string]string{"state": string(s.worker.State())}, s.logger)

	case ActionSync:
		if s.queue == nil {
			response.BadRequest(w, "No sync queue running", s.logger)
			return
		}
		if msg.Review != nil {
			s.handleSyncReview(w, r, msg.Review)
			return
		}
		s.queue.Wake()
		response.Success(w, map[string]string{"status": "sync triggered"}, s.logger)

	case ActionVisibility:
		if msg.ClientID == "" || msg.Visible == nil {
			response.BadRequest(w, "client_id and visible are required", s.logger)
			return
		}
		s.sseHandler.Manager().SetVisible(msg.ClientID, *msg.Visible)
		response.Success(w, map[string]string{"status": "visibility updated"}, s.logger)

	default:
		response.BadRequest(w, "Unknown action", s.logger)
	}
}

// handleSyncReview registers a review carried in a sync message. The page
// uses this channel for a drafted review whose POST round trip already
// failed; the review is persisted under a surrogate id and queued.
func (s *Server) handleSyncReview(w http.ResponseWriter, r *http.Request, req *CreateReviewRequest) {
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	review, err := s.catalog.RegisterPendingReview(r.Context(), &domain.Review{
		RestaurantID: req.RestaurantID,
		Name:         req.Name,
		Rating:       req.Rating,
		Comments:     req.Comments,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Accepted(w, ReviewResponse{Review: review, Pending: true}, s.logger)
}

// WorkerStateResponse describes the gateway worker for the page.
type WorkerStateResponse struct {
	State   string `json:"state"`
	Version int    `json:"version"`
	Pending int    `json:"pending_reviews"`
}

// handleWorkerState reports the worker lifecycle state, the active asset
// generation, and the queue depth.
func (s *Server) handleWorkerState(w http.ResponseWriter, r *http.Request) {
	resp := WorkerStateResponse{}
	if s.worker != nil {
		resp.State = string(s.worker.State())
		resp.Version = s.worker.Version()
	}
	if s.queue != nil {
		pending, err := s.queue.Pending(r.Context())
		if err == nil {
			resp.Pending = len(pending)
		}
	}

	response.Success(w, resp, s.logger)
}

// handleHealthCheck reports daemon liveness.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"}, s.logger)
}
