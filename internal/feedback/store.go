package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrInvalidRating = errors.New("feedback: rating must be positive or negative")

const (
	RatingPositive = "positive"
	RatingNegative = "negative"
)

// Feedback is a user's verdict on one conversation turn.
type Feedback struct {
	ID         string     `json:"id"`
	TurnID     string     `json:"turnId"`
	SessionID  string     `json:"sessionId"`
	Rating     string     `json:"rating"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Reviewed   bool       `json:"reviewed"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists user feedback in Postgres, one row per turn. A second
// submission for the same turn replaces the first.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("feedback: pool cannot be nil")
	}
	return &Store{pool: pool}
}

// Submit records feedback for a turn, replacing any earlier rating. The
// reviewed flag resets on resubmission so changed verdicts get another
// look from the miner.
func (s *Store) Submit(ctx context.Context, fb Feedback) (*Feedback, error) {
	if fb.Rating != RatingPositive && fb.Rating != RatingNegative {
		return nil, ErrInvalidRating
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_feedback (id, turn_id, session_id, rating, comment, created_at, reviewed, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, NULL)
		ON CONFLICT (turn_id)
		DO UPDATE SET rating = EXCLUDED.rating,
			comment = EXCLUDED.comment,
			created_at = EXCLUDED.created_at,
			reviewed = false,
			reviewed_at = NULL
	`
	_, err := s.pool.Exec(ctx, query, fb.ID, fb.TurnID, fb.SessionID, fb.Rating, fb.Comment, fb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("feedback: submit: %w", err)
	}
	return &fb, nil
}

// MarkReviewed flags feedback rows as consumed by a retraining run. It is
// idempotent; rows already reviewed keep their original reviewed_at.
func (s *Store) MarkReviewed(ctx context.Context, feedbackIDs []string) error {
	if len(feedbackIDs) == 0 {
		return nil
	}
	query := `
		UPDATE user_feedback
		SET reviewed = true, reviewed_at = COALESCE(reviewed_at, now())
		WHERE id = ANY($1) AND reviewed = false
	`
	if _, err := s.pool.Exec(ctx, query, feedbackIDs); err != nil {
		return fmt.Errorf("feedback: mark reviewed: %w", err)
	}
	return nil
}

// ListNegativeUnreviewed returns negative feedback not yet consumed by a
// retraining run, oldest first so curation works through a stable queue.
func (s *Store) ListNegativeUnreviewed(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `
		SELECT id, turn_id, session_id, rating, comment, created_at, reviewed, reviewed_at
		FROM user_feedback
		WHERE rating = 'negative' AND reviewed = false
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("feedback: list negative unreviewed: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// ListByTurnIDs fetches feedback for a set of turns.
func (s *Store) ListByTurnIDs(ctx context.Context, turnIDs []string) ([]Feedback, error) {
	if len(turnIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, turn_id, session_id, rating, comment, created_at, reviewed, reviewed_at
		FROM user_feedback
		WHERE turn_id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, turnIDs)
	if err != nil {
		return nil, fmt.Errorf("feedback: list by turns: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// CountSince returns total and negative feedback volume since a point in
// time. The retraining trigger uses it to decide whether enough new
// signal has accumulated.
func (s *Store) CountSince(ctx context.Context, since time.Time) (total int64, negative int64, err error) {
	query := `
		SELECT count(*), count(*) FILTER (WHERE rating = 'negative')
		FROM user_feedback
		WHERE created_at >= $1
	`
	if err := s.pool.QueryRow(ctx, query, since).Scan(&total, &negative); err != nil {
		return 0, 0, fmt.Errorf("feedback: count since: %w", err)
	}
	return total, negative, nil
}

func scanFeedback(rows pgx.Rows) ([]Feedback, error) {
	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var comment *string
		if err := rows.Scan(&fb.ID, &fb.TurnID, &fb.SessionID, &fb.Rating, &comment,
			&fb.CreatedAt, &fb.Reviewed, &fb.ReviewedAt); err != nil {
			return nil, fmt.Errorf("feedback: scan: %w", err)
		}
		if comment != nil {
			fb.Comment = *comment
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback: rows: %w", err)
	}
	return out, nil
}
