package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bookline-ai-platform/internal/training"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// RetrainService starts and inspects retraining runs.
type RetrainService interface {
	Trigger(params training.TriggerParams) (string, error)
	Running() bool
}

// JobReader loads retraining job records.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*training.JobRecord, error)
}

// AdminRetrainHandler exposes the retraining pipeline to operators.
type AdminRetrainHandler struct {
	pipeline RetrainService
	jobs     JobReader
	logger   *logging.Logger
}

// NewAdminRetrainHandler creates a retraining admin handler.
func NewAdminRetrainHandler(pipeline RetrainService, jobs JobReader, logger *logging.Logger) *AdminRetrainHandler {
	if pipeline == nil {
		panic("handlers: retrain pipeline cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminRetrainHandler{pipeline: pipeline, jobs: jobs, logger: logger}
}

type triggerRequest struct {
	TriggerSource    string `json:"triggerSource"`
	MinNewDataPoints int    `json:"minNewDataPoints"`
}

// Trigger handles POST /admin/retrain. The body is optional JSON with
// triggerSource and minNewDataPoints overrides. The pipeline is
// single-flighted: a concurrent trigger gets 409 with the conflict
// reason rather than a second run.
func (h *AdminRetrainHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid trigger body")
			return
		}
	}
	if req.MinNewDataPoints < 0 {
		respondError(w, http.StatusBadRequest, "minNewDataPoints must not be negative")
		return
	}
	if req.TriggerSource == "" {
		req.TriggerSource = "manual"
	}

	jobID, err := h.pipeline.Trigger(training.TriggerParams{
		Source:           req.TriggerSource,
		MinNewDataPoints: req.MinNewDataPoints,
	})
	if err != nil {
		if errors.Is(err, training.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "a retraining job is already running")
			return
		}
		h.logger.Error("admin: retrain trigger failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to start retraining")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"jobId":         jobID,
		"status":        "running",
		"triggerSource": req.TriggerSource,
	})
}

// Status handles GET /admin/retrain. It reports whether a run is in
// flight without touching the job store.
func (h *AdminRetrainHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"running": h.pipeline.Running()})
}

// Job handles GET /admin/retrain/jobs/{jobID}.
func (h *AdminRetrainHandler) Job(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusNotFound, "job store not configured")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	rec, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, training.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("admin: load job failed", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
