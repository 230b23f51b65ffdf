package abtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidSplit      = errors.New("abtest: traffic split must be in (0, 0.5]")
	ErrExperimentActive  = errors.New("abtest: another experiment is already active")
	ErrExperimentMissing = errors.New("abtest: experiment not found")
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"

	VariantControl   = "control"
	VariantCandidate = "candidate"
)

// Experiment routes a slice of live traffic to a candidate model version.
type Experiment struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	ControlVersion   string     `json:"controlVersion"`
	CandidateVersion string     `json:"candidateVersion"`
	TrafficSplit     float64    `json:"trafficSplit"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	Winner           string     `json:"winner,omitempty"`
}

// Assignment pins a session to a variant for the experiment's lifetime.
type Assignment struct {
	SessionID    string    `json:"sessionId"`
	ExperimentID string    `json:"experimentId"`
	Variant      string    `json:"variant"`
	ModelVersion string    `json:"modelVersion"`
	AssignedAt   time.Time `json:"assignedAt"`
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists experiments, per-session assignments, and the model
// version currently serving the full traffic outside any experiment.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("abtest: pool cannot be nil")
	}
	return &Store{pool: pool}
}

// CreateExperiment starts an experiment. Only one may be active at a time.
func (s *Store) CreateExperiment(ctx context.Context, name, controlVersion, candidateVersion string, split float64) (*Experiment, error) {
	if split <= 0 || split > 0.5 {
		return nil, ErrInvalidSplit
	}

	var active int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM ab_experiments WHERE status = 'active'`).Scan(&active); err != nil {
		return nil, fmt.Errorf("abtest: check active experiments: %w", err)
	}
	if active > 0 {
		return nil, ErrExperimentActive
	}

	exp := &Experiment{
		ID:               uuid.NewString(),
		Name:             name,
		ControlVersion:   controlVersion,
		CandidateVersion: candidateVersion,
		TrafficSplit:     split,
		Status:           StatusActive,
		StartedAt:        time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ab_experiments (id, name, control_version, candidate_version, traffic_split, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, exp.ID, exp.Name, exp.ControlVersion, exp.CandidateVersion, exp.TrafficSplit, exp.Status, exp.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("abtest: create experiment: %w", err)
	}
	return exp, nil
}

// ActiveExperiment returns the running experiment, or nil when traffic is
// not being split.
func (s *Store) ActiveExperiment(ctx context.Context) (*Experiment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, control_version, candidate_version, traffic_split, status, started_at, ended_at, winner
		FROM ab_experiments
		WHERE status = 'active'
		ORDER BY started_at DESC
		LIMIT 1
	`)
	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return exp, nil
}

func (s *Store) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, control_version, candidate_version, traffic_split, status, started_at, ended_at, winner
		FROM ab_experiments
		WHERE id = $1
	`, id)
	exp, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExperimentMissing
		}
		return nil, err
	}
	return exp, nil
}

// CompleteExperiment closes an experiment with a winning variant. When the
// candidate wins it becomes the current full-traffic version.
func (s *Store) CompleteExperiment(ctx context.Context, id, winner string) error {
	exp, err := s.GetExperiment(ctx, id)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE ab_experiments
		SET status = 'completed', winner = $2, ended_at = now()
		WHERE id = $1 AND status = 'active'
	`, id, winner)
	if err != nil {
		return fmt.Errorf("abtest: complete experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExperimentMissing
	}

	if winner == VariantCandidate {
		if err := s.SetCurrentVersion(ctx, exp.CandidateVersion); err != nil {
			return err
		}
	}
	return nil
}

// CancelExperiment aborts an experiment; traffic reverts to the control.
func (s *Store) CancelExperiment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ab_experiments
		SET status = 'cancelled', ended_at = now()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return fmt.Errorf("abtest: cancel experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExperimentMissing
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, sessionID, experimentID string) (*Assignment, error) {
	var a Assignment
	err := s.pool.QueryRow(ctx, `
		SELECT session_id, experiment_id, variant, model_version, assigned_at
		FROM ab_assignments
		WHERE session_id = $1 AND experiment_id = $2
	`, sessionID, experimentID).Scan(&a.SessionID, &a.ExperimentID, &a.Variant, &a.ModelVersion, &a.AssignedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("abtest: get assignment: %w", err)
	}
	return &a, nil
}

// SaveAssignment records the variant picked for a session. A concurrent
// duplicate keeps the first row; hashing makes both writers agree anyway.
func (s *Store) SaveAssignment(ctx context.Context, a Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ab_assignments (session_id, experiment_id, variant, model_version, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, experiment_id) DO NOTHING
	`, a.SessionID, a.ExperimentID, a.Variant, a.ModelVersion, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("abtest: save assignment: %w", err)
	}
	return nil
}

// CurrentVersion is the model serving all non-experiment traffic.
func (s *Store) CurrentVersion(ctx context.Context) (string, error) {
	var version string
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM model_current WHERE id = 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("abtest: current version: %w", err)
	}
	return version, nil
}

func (s *Store) SetCurrentVersion(ctx context.Context, version string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_current (id, version, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, updated_at = now()
	`, version)
	if err != nil {
		return fmt.Errorf("abtest: set current version: %w", err)
	}
	return nil
}

func scanExperiment(row pgx.Row) (*Experiment, error) {
	var exp Experiment
	var winner *string
	err := row.Scan(&exp.ID, &exp.Name, &exp.ControlVersion, &exp.CandidateVersion,
		&exp.TrafficSplit, &exp.Status, &exp.StartedAt, &exp.EndedAt, &winner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("abtest: scan experiment: %w", err)
	}
	if winner != nil {
		exp.Winner = *winner
	}
	return &exp, nil
}
