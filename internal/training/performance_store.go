package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNoPerformanceRecords = errors.New("training: no performance records")

// PerformanceRecord captures one retraining outcome for the model
// ledger: holdout accuracy plus the booking funnel observed while the
// training window was live, and the deployment flags maintained as the
// version moves through canary and production.
type PerformanceRecord struct {
	ModelVersion         string     `json:"modelVersion"`
	TrainedAt            time.Time  `json:"trainedAt"`
	DataPoints           int        `json:"dataPoints"`
	Accuracy             float64    `json:"accuracy"`
	BookingSuccessRate   float64    `json:"bookingSuccessRate"`
	AvgConversationTurns float64    `json:"avgConversationTurns"`
	PassedGate           bool       `json:"passedGate"`
	IsActiveProduction   bool       `json:"isActiveProduction"`
	IsActiveABTest       bool       `json:"isActiveAbTest"`
	DeployedAt           *time.Time `json:"deploymentDate,omitempty"`
	Notes                string     `json:"notes,omitempty"`
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PerformanceStore keeps the append-only ledger of model versions and
// their holdout accuracy.
type PerformanceStore struct {
	pool Querier
}

func NewPerformanceStore(pool Querier) *PerformanceStore {
	if pool == nil {
		panic("training: pool cannot be nil")
	}
	return &PerformanceStore{pool: pool}
}

func (s *PerformanceStore) Insert(ctx context.Context, rec PerformanceRecord) error {
	if rec.TrainedAt.IsZero() {
		rec.TrainedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_performance (
			model_version, trained_at, data_points, accuracy,
			booking_success_rate, avg_conversation_turns,
			passed_gate, is_active_production, is_active_ab_test, deployed_at, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ModelVersion, rec.TrainedAt, rec.DataPoints, rec.Accuracy,
		rec.BookingSuccessRate, rec.AvgConversationTurns,
		rec.PassedGate, rec.IsActiveProduction, rec.IsActiveABTest, rec.DeployedAt, rec.Notes)
	if err != nil {
		return fmt.Errorf("training: insert performance record: %w", err)
	}
	return nil
}

// Latest returns the most recently trained record.
func (s *PerformanceStore) Latest(ctx context.Context) (*PerformanceRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT model_version, trained_at, data_points, accuracy,
			booking_success_rate, avg_conversation_turns,
			passed_gate, is_active_production, is_active_ab_test, deployed_at, notes
		FROM model_performance
		ORDER BY trained_at DESC
		LIMIT 1
	`)
	rec, err := scanPerformance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPerformanceRecords
		}
		return nil, err
	}
	return rec, nil
}

func (s *PerformanceStore) List(ctx context.Context, limit int) ([]PerformanceRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT model_version, trained_at, data_points, accuracy,
			booking_success_rate, avg_conversation_turns,
			passed_gate, is_active_production, is_active_ab_test, deployed_at, notes
		FROM model_performance
		ORDER BY trained_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("training: list performance records: %w", err)
	}
	defer rows.Close()

	var out []PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("training: list performance records: %w", err)
	}
	return out, nil
}

// SetActiveABTest flags or clears a version's canary status.
func (s *PerformanceStore) SetActiveABTest(ctx context.Context, modelVersion string, active bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE model_performance SET is_active_ab_test = $2 WHERE model_version = $1
	`, modelVersion, active)
	if err != nil {
		return fmt.Errorf("training: set ab test flag: %w", err)
	}
	return nil
}

// MarkActiveProduction flags one version as serving production traffic
// and clears the flag on every other version, so at most one record
// carries it. The deployment date is stamped the first time a version
// is promoted.
func (s *PerformanceStore) MarkActiveProduction(ctx context.Context, modelVersion string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE model_performance
		SET is_active_production = (model_version = $1),
			deployed_at = CASE
				WHEN model_version = $1 AND deployed_at IS NULL THEN now()
				ELSE deployed_at
			END
	`, modelVersion)
	if err != nil {
		return fmt.Errorf("training: mark active production: %w", err)
	}
	return nil
}

func scanPerformance(row pgx.Row) (*PerformanceRecord, error) {
	var rec PerformanceRecord
	var notes *string
	err := row.Scan(&rec.ModelVersion, &rec.TrainedAt, &rec.DataPoints, &rec.Accuracy,
		&rec.BookingSuccessRate, &rec.AvgConversationTurns,
		&rec.PassedGate, &rec.IsActiveProduction, &rec.IsActiveABTest, &rec.DeployedAt, &notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("training: scan performance record: %w", err)
	}
	if notes != nil {
		rec.Notes = *notes
	}
	return &rec, nil
}
