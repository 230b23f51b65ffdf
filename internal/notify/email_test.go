package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderBuildsInput(t *testing.T) {
	ses := &fakeSES{}
	sender := NewSESSender(ses, SESConfig{FromEmail: "noreply@bookline.example", FromName: "Bookline AI"}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "ops@bookline.example",
		Subject: "New model in canary",
		Body:    "v20260831-1 at 10% traffic",
	})
	require.NoError(t, err)
	require.Len(t, ses.inputs, 1)
	input := ses.inputs[0]
	assert.Equal(t, "Bookline AI <noreply@bookline.example>", aws.ToString(input.FromEmailAddress))
	assert.Equal(t, []string{"ops@bookline.example"}, input.Destination.ToAddresses)
	assert.Equal(t, "New model in canary", aws.ToString(input.Content.Simple.Subject.Data))
}

func TestFailoverSenderPrimaryWins(t *testing.T) {
	primary := &recordingSender{}
	fallback := &recordingSender{}
	sender := NewFailoverSender(primary, fallback, nil)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "a@b.c"}))
	assert.Len(t, primary.sent, 1)
	assert.Empty(t, fallback.sent)
}

func TestFailoverSenderFallsBack(t *testing.T) {
	primary := &recordingSender{err: errors.New("ses throttled")}
	fallback := &recordingSender{}
	sender := NewFailoverSender(primary, fallback, nil)

	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "a@b.c"}))
	assert.Len(t, fallback.sent, 1)
}

func TestFailoverSenderBothFail(t *testing.T) {
	primary := &recordingSender{err: errors.New("ses down")}
	fallback := &recordingSender{err: errors.New("sendgrid down")}
	sender := NewFailoverSender(primary, fallback, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback failed")
}
