package abtest

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateExperimentValidatesSplit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	for _, split := range []float64{0, -0.1, 0.51, 1} {
		_, err := store.CreateExperiment(context.Background(), "x", "v3", "v4", split)
		assert.ErrorIs(t, err, ErrInvalidSplit, "split %v", split)
	}
}

func TestCreateExperimentRejectsSecondActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	store := NewStore(mock)
	_, err = store.CreateExperiment(context.Background(), "x", "v3", "v4", 0.1)
	assert.ErrorIs(t, err, ErrExperimentActive)
}

func TestCreateExperiment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO ab_experiments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	exp, err := store.CreateExperiment(context.Background(), "v4 canary", "v3", "v4", 0.1)
	require.NoError(t, err)
	assert.NotEmpty(t, exp.ID)
	assert.Equal(t, StatusActive, exp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveExperimentNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM ab_experiments").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "control_version", "candidate_version", "traffic_split",
			"status", "started_at", "ended_at", "winner",
		}))

	store := NewStore(mock)
	exp, err := store.ActiveExperiment(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestCompleteExperimentCandidateWinPromotesVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM ab_experiments").
		WithArgs("exp-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "control_version", "candidate_version", "traffic_split",
			"status", "started_at", "ended_at", "winner",
		}).AddRow("exp-1", "v4 canary", "v3", "v4", 0.1, StatusActive, started, (*time.Time)(nil), (*string)(nil)))
	mock.ExpectExec("UPDATE ab_experiments").
		WithArgs("exp-1", VariantCandidate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO model_current").
		WithArgs("v4").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	require.NoError(t, store.CompleteExperiment(context.Background(), "exp-1", VariantCandidate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteExperimentControlWinKeepsVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM ab_experiments").
		WithArgs("exp-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "control_version", "candidate_version", "traffic_split",
			"status", "started_at", "ended_at", "winner",
		}).AddRow("exp-1", "v4 canary", "v3", "v4", 0.1, StatusActive, started, (*time.Time)(nil), (*string)(nil)))
	mock.ExpectExec("UPDATE ab_experiments").
		WithArgs("exp-1", VariantControl).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	require.NoError(t, store.CompleteExperiment(context.Background(), "exp-1", VariantControl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAssignmentIgnoresDuplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO ab_assignments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewStore(mock)
	err = store.SaveAssignment(context.Background(), Assignment{
		SessionID:    "s1",
		ExperimentID: "exp-1",
		Variant:      VariantControl,
		ModelVersion: "v3",
		AssignedAt:   time.Now().UTC(),
	})
	assert.NoError(t, err)
}
