package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/bookline-ai-platform/internal/feedback"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// FeedbackStore is the subset of the feedback store the handler needs.
type FeedbackStore interface {
	Submit(ctx context.Context, fb feedback.Feedback) (*feedback.Feedback, error)
}

// FeedbackHandler accepts end-user thumbs up/down on individual turns.
type FeedbackHandler struct {
	store  FeedbackStore
	logger *logging.Logger
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(store FeedbackStore, logger *logging.Logger) *FeedbackHandler {
	if store == nil {
		panic("handlers: feedback store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FeedbackHandler{store: store, logger: logger}
}

type feedbackRequest struct {
	ConversationTurnID string `json:"conversationTurnId"`
	SessionID          string `json:"sessionId"`
	Rating             string `json:"rating"`
	Comment            string `json:"comment,omitempty"`
}

// Submit handles POST /feedback. Repeat submissions for the same turn
// overwrite the previous rating.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationTurnID == "" || req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "conversationTurnId and sessionId are required")
		return
	}

	saved, err := h.store.Submit(r.Context(), feedback.Feedback{
		TurnID:    req.ConversationTurnID,
		SessionID: req.SessionID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			respondError(w, http.StatusBadRequest, "rating must be positive or negative")
			return
		}
		h.logger.Error("feedback submit failed", "turn_id", req.ConversationTurnID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}

	respondJSON(w, http.StatusCreated, saved)
}
