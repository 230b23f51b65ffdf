package abtest

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

// splitterStore is the subset of Store the splitter needs.
type splitterStore interface {
	ActiveExperiment(ctx context.Context) (*Experiment, error)
	GetAssignment(ctx context.Context, sessionID, experimentID string) (*Assignment, error)
	SaveAssignment(ctx context.Context, a Assignment) error
	CurrentVersion(ctx context.Context) (string, error)
}

// Splitter decides which model version serves a session. Assignment is
// sticky: a stored assignment always wins, and without one the decision
// hashes the session and experiment IDs so repeated calls and concurrent
// replicas agree without coordination.
type Splitter struct {
	store          splitterStore
	defaultVersion string
	logger         *logging.Logger
	now            func() time.Time
}

func NewSplitter(store splitterStore, defaultVersion string, logger *logging.Logger) *Splitter {
	if store == nil {
		panic("abtest: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Splitter{
		store:          store,
		defaultVersion: defaultVersion,
		logger:         logger,
		now:            time.Now,
	}
}

// ActiveModelVersion never fails: any store error degrades to the current
// production version so classification keeps working during outages.
func (s *Splitter) ActiveModelVersion(ctx context.Context, sessionID string) string {
	exp, err := s.store.ActiveExperiment(ctx)
	if err != nil {
		s.logger.Warn("active experiment lookup failed", "error", err)
		return s.fallbackVersion(ctx)
	}
	if exp == nil {
		return s.fallbackVersion(ctx)
	}

	if assignment, err := s.store.GetAssignment(ctx, sessionID, exp.ID); err != nil {
		s.logger.Warn("assignment lookup failed", "session_id", sessionID, "error", err)
	} else if assignment != nil {
		return assignment.ModelVersion
	}

	variant := VariantControl
	version := exp.ControlVersion
	if Bucket(sessionID, exp.ID) < exp.TrafficSplit {
		variant = VariantCandidate
		version = exp.CandidateVersion
	}

	if err := s.store.SaveAssignment(ctx, Assignment{
		SessionID:    sessionID,
		ExperimentID: exp.ID,
		Variant:      variant,
		ModelVersion: version,
		AssignedAt:   s.now().UTC(),
	}); err != nil {
		// The hash keeps the next call deterministic even without the row.
		s.logger.Warn("assignment save failed", "session_id", sessionID, "error", err)
	}
	return version
}

func (s *Splitter) fallbackVersion(ctx context.Context) string {
	version, err := s.store.CurrentVersion(ctx)
	if err != nil {
		s.logger.Warn("current version lookup failed", "error", err)
		return s.defaultVersion
	}
	if version == "" {
		return s.defaultVersion
	}
	return version
}

// Bucket maps a session deterministically onto [0, 1).
func Bucket(sessionID, experimentID string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(experimentID))
	return float64(h.Sum64()) / math.MaxUint64
}
