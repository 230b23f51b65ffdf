package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bookline-ai-platform/internal/conversation"
	"github.com/wolfman30/bookline-ai-platform/internal/convlog"
	"github.com/wolfman30/bookline-ai-platform/internal/feedback"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// ConversationLog is the subset of the conversation log store the
// admin API reads from.
type ConversationLog interface {
	List(ctx context.Context, f convlog.Filter) ([]conversation.Turn, error)
	Get(ctx context.Context, id string) (*conversation.Turn, error)
	Stats(ctx context.Context, since time.Time) (*convlog.Stats, error)
}

// CurationQueue exposes negative feedback awaiting manual labeling.
type CurationQueue interface {
	ListNegativeUnreviewed(ctx context.Context, limit int) ([]feedback.Feedback, error)
	MarkReviewed(ctx context.Context, feedbackIDs []string) error
	CountSince(ctx context.Context, since time.Time) (total int64, negative int64, err error)
}

// AdminConversationsHandler serves the admin analytics API: turn
// listings, per-turn detail, aggregate stats and the curation queue.
type AdminConversationsHandler struct {
	log      ConversationLog
	curation CurationQueue
	logger   *logging.Logger
}

// NewAdminConversationsHandler creates an admin conversations handler.
func NewAdminConversationsHandler(log ConversationLog, curation CurationQueue, logger *logging.Logger) *AdminConversationsHandler {
	if log == nil {
		panic("handlers: conversation log cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{log: log, curation: curation, logger: logger}
}

// List handles GET /admin/conversations with query-string filters.
func (h *AdminConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := convlog.Filter{
		SessionID:     q.Get("session"),
		ChannelUserID: q.Get("user"),
		Channel:       q.Get("channel"),
		Intent:        q.Get("intent"),
		Generator:     q.Get("generator"),
	}
	f.OnlyFailures = q.Get("failures") == "true"
	if v := q.Get("minConfidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || c < 0 || c > 1 {
			respondError(w, http.StatusBadRequest, "minConfidence must be in [0, 1]")
			return
		}
		f.MinConfidence = c
	}
	if v := q.Get("maxConfidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil || c < 0 || c > 1 {
			respondError(w, http.StatusBadRequest, "maxConfidence must be in [0, 1]")
			return
		}
		f.MaxConfidence = c
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		f.Until = ts
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}

	turns, err := h.log.List(r.Context(), f)
	if err != nil {
		h.logger.Error("admin: list turns failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"turns": turns,
		"count": len(turns),
	})
}

// Get handles GET /admin/conversations/{turnID}.
func (h *AdminConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "turnID")
	turn, err := h.log.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, convlog.ErrTurnNotFound) {
			respondError(w, http.StatusNotFound, "turn not found")
			return
		}
		h.logger.Error("admin: get turn failed", "turn_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load turn")
		return
	}
	respondJSON(w, http.StatusOK, turn)
}

// Stats handles GET /admin/stats?days=N (default 30).
func (h *AdminConversationsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	stats, err := h.log.Stats(r.Context(), since)
	if err != nil {
		h.logger.Error("admin: stats failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	resp := struct {
		*convlog.Stats
		FeedbackTotal    int64 `json:"feedbackTotal"`
		FeedbackNegative int64 `json:"feedbackNegative"`
	}{Stats: stats}
	if h.curation != nil {
		total, negative, cerr := h.curation.CountSince(r.Context(), since)
		if cerr != nil {
			h.logger.Warn("admin: feedback counts failed", "error", cerr)
		} else {
			resp.FeedbackTotal = total
			resp.FeedbackNegative = negative
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// CurationQueue handles GET /admin/curation-queue: negative feedback
// whose turns are excluded from mining until a human reviews them.
func (h *AdminConversationsHandler) CurationQueue(w http.ResponseWriter, r *http.Request) {
	if h.curation == nil {
		respondError(w, http.StatusNotFound, "curation queue not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	items, err := h.curation.ListNegativeUnreviewed(r.Context(), limit)
	if err != nil {
		h.logger.Error("admin: curation queue failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load curation queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// MarkReviewed handles POST /admin/curation-queue/reviewed with a body
// of {"ids": [...]}. Already-reviewed ids are ignored.
func (h *AdminConversationsHandler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	if h.curation == nil {
		respondError(w, http.StatusNotFound, "curation queue not configured")
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.curation.MarkReviewed(r.Context(), req.IDs); err != nil {
		h.logger.Error("admin: mark reviewed failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to mark feedback reviewed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reviewed": len(req.IDs)})
}
