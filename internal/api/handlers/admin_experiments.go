package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/bookline-ai-platform/internal/abtest"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// ExperimentStore is the subset of the A/B store the admin API uses.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, name, controlVersion, candidateVersion string, split float64) (*abtest.Experiment, error)
	ActiveExperiment(ctx context.Context) (*abtest.Experiment, error)
	GetExperiment(ctx context.Context, id string) (*abtest.Experiment, error)
	CompleteExperiment(ctx context.Context, id, winner string) error
	CancelExperiment(ctx context.Context, id string) error
	CurrentVersion(ctx context.Context) (string, error)
}

// ModelLedger maintains the deployment flags on the model performance
// ledger as versions move through canary and production.
type ModelLedger interface {
	MarkActiveProduction(ctx context.Context, modelVersion string) error
	SetActiveABTest(ctx context.Context, modelVersion string, active bool) error
}

// AdminExperimentsHandler manages A/B experiments over the admin API.
type AdminExperimentsHandler struct {
	store  ExperimentStore
	ledger ModelLedger
	logger *logging.Logger
}

// NewAdminExperimentsHandler creates an experiments admin handler. The
// ledger may be nil; deployment flags are then left untouched.
func NewAdminExperimentsHandler(store ExperimentStore, ledger ModelLedger, logger *logging.Logger) *AdminExperimentsHandler {
	if store == nil {
		panic("handlers: experiment store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminExperimentsHandler{store: store, ledger: ledger, logger: logger}
}

// Active handles GET /admin/experiments/active. Includes the current
// production model version so the operator sees both sides.
func (h *AdminExperimentsHandler) Active(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ActiveExperiment(r.Context())
	if err != nil {
		h.logger.Error("admin: active experiment lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load active experiment")
		return
	}

	current, err := h.store.CurrentVersion(r.Context())
	if err != nil {
		h.logger.Warn("admin: current version lookup failed", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"experiment":     exp,
		"currentVersion": current,
	})
}

type createExperimentRequest struct {
	Name             string  `json:"name"`
	CandidateVersion string  `json:"candidateVersion"`
	TrafficSplit     float64 `json:"trafficSplit"`
}

// Create handles POST /admin/experiments. Control defaults to the
// current production version.
func (h *AdminExperimentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CandidateVersion == "" {
		respondError(w, http.StatusBadRequest, "candidateVersion is required")
		return
	}

	control, err := h.store.CurrentVersion(r.Context())
	if err != nil {
		h.logger.Error("admin: current version lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to resolve control version")
		return
	}

	exp, err := h.store.CreateExperiment(r.Context(), req.Name, control, req.CandidateVersion, req.TrafficSplit)
	if err != nil {
		switch {
		case errors.Is(err, abtest.ErrInvalidSplit):
			respondError(w, http.StatusBadRequest, "trafficSplit must be in (0, 0.5]")
		case errors.Is(err, abtest.ErrExperimentActive):
			respondError(w, http.StatusConflict, "an experiment is already active")
		default:
			h.logger.Error("admin: create experiment failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to create experiment")
		}
		return
	}

	respondJSON(w, http.StatusCreated, exp)
}

type completeExperimentRequest struct {
	Winner string `json:"winner"` // "control" or "candidate"
}

// Complete handles POST /admin/experiments/{experimentID}/complete.
// A candidate win promotes it to the production version.
func (h *AdminExperimentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "experimentID")

	var req completeExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Winner != abtest.VariantControl && req.Winner != abtest.VariantCandidate {
		respondError(w, http.StatusBadRequest, "winner must be control or candidate")
		return
	}

	exp, err := h.store.GetExperiment(r.Context(), id)
	if err != nil && !errors.Is(err, abtest.ErrExperimentMissing) {
		h.logger.Warn("admin: experiment lookup failed", "experiment_id", id, "error", err)
	}

	if err := h.store.CompleteExperiment(r.Context(), id, req.Winner); err != nil {
		if errors.Is(err, abtest.ErrExperimentMissing) {
			respondError(w, http.StatusNotFound, "experiment not found")
			return
		}
		h.logger.Error("admin: complete experiment failed", "experiment_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to complete experiment")
		return
	}

	h.updateLedger(r.Context(), exp, req.Winner)

	respondJSON(w, http.StatusOK, map[string]string{"status": "completed", "winner": req.Winner})
}

// updateLedger moves the performance ledger flags once an experiment
// closes: the winning version becomes the active production model and
// the candidate leaves canary.
func (h *AdminExperimentsHandler) updateLedger(ctx context.Context, exp *abtest.Experiment, winner string) {
	if h.ledger == nil || exp == nil {
		return
	}
	winnerVersion := exp.ControlVersion
	if winner == abtest.VariantCandidate {
		winnerVersion = exp.CandidateVersion
	}
	if err := h.ledger.MarkActiveProduction(ctx, winnerVersion); err != nil {
		h.logger.Warn("admin: production flag update failed", "model_version", winnerVersion, "error", err)
	}
	if err := h.ledger.SetActiveABTest(ctx, exp.CandidateVersion, false); err != nil {
		h.logger.Warn("admin: ab test flag update failed", "model_version", exp.CandidateVersion, "error", err)
	}
}

// Cancel handles POST /admin/experiments/{experimentID}/cancel.
func (h *AdminExperimentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "experimentID")

	if err := h.store.CancelExperiment(r.Context(), id); err != nil {
		if errors.Is(err, abtest.ErrExperimentMissing) {
			respondError(w, http.StatusNotFound, "experiment not found")
			return
		}
		h.logger.Error("admin: cancel experiment failed", "experiment_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to cancel experiment")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
