package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/bookline-ai-platform/internal/feedback"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

type fakeFeedbackStore struct {
	submitted []feedback.Feedback
	err       error
}

func (f *fakeFeedbackStore) Submit(_ context.Context, fb feedback.Feedback) (*feedback.Feedback, error) {
	if f.err != nil {
		return nil, f.err
	}
	if fb.Rating != feedback.RatingPositive && fb.Rating != feedback.RatingNegative {
		return nil, feedback.ErrInvalidRating
	}
	f.submitted = append(f.submitted, fb)
	saved := fb
	saved.ID = "fb-1"
	return &saved, nil
}

func TestFeedbackSubmit(t *testing.T) {
	t.Run("accepts valid feedback", func(t *testing.T) {
		store := &fakeFeedbackStore{}
		h := NewFeedbackHandler(store, logging.New("error"))

		body := `{"conversationTurnId":"turn-1","sessionId":"sms-gateway:+34611222333","rating":"negative","comment":"wrong answer"}`
		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.Submit(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, store.submitted, 1)
		assert.Equal(t, "turn-1", store.submitted[0].TurnID)
		assert.Equal(t, feedback.RatingNegative, store.submitted[0].Rating)
	})

	t.Run("rejects unknown rating", func(t *testing.T) {
		h := NewFeedbackHandler(&fakeFeedbackStore{}, logging.New("error"))

		body := `{"conversationTurnId":"turn-1","sessionId":"s","rating":"meh"}`
		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.Submit(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing turn id", func(t *testing.T) {
		h := NewFeedbackHandler(&fakeFeedbackStore{}, logging.New("error"))

		body := `{"sessionId":"s","rating":"positive"}`
		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.Submit(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		h := NewFeedbackHandler(&fakeFeedbackStore{}, logging.New("error"))

		req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		h.Submit(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
