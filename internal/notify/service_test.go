package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceNotifyDeliversToOperator(t *testing.T) {
	email := &recordingSender{}
	svc := NewService(email, "ops@bookline.example", "Ops", nil)

	require.NoError(t, svc.Notify(context.Background(), "Retraining failed", "training service returned 500"))
	require.Len(t, email.sent, 1)
	msg := email.sent[0]
	assert.Equal(t, "ops@bookline.example", msg.To)
	assert.Equal(t, "[Bookline] Retraining failed", msg.Subject)
	assert.Contains(t, msg.Body, "training service returned 500")
}

func TestServiceNotifySkipsWithoutOperator(t *testing.T) {
	email := &recordingSender{}
	svc := NewService(email, "", "", nil)

	require.NoError(t, svc.Notify(context.Background(), "New model in canary", "v1"))
	assert.Empty(t, email.sent)
}

func TestServiceNotifyWrapsSendError(t *testing.T) {
	email := &recordingSender{err: errors.New("smtp refused")}
	svc := NewService(email, "ops@bookline.example", "", nil)

	err := svc.Notify(context.Background(), "subject", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator notification")
}

func TestServiceDefaultsToStubSender(t *testing.T) {
	svc := NewService(nil, "ops@bookline.example", "", nil)
	require.NoError(t, svc.Notify(context.Background(), "subject", "body"))
}
