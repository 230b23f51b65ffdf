package llm

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	resp Response
	err  error
	hits int
}

func (s *stubClient) Complete(ctx context.Context, req Request) (Response, error) {
	s.hits++
	return s.resp, s.err
}

func TestFallbackClientUsesPrimary(t *testing.T) {
	primary := &stubClient{resp: Response{Text: "primary"}}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "primary" {
		t.Errorf("text = %q", resp.Text)
	}
	if fallback.hits != 0 {
		t.Errorf("fallback should not be called, hits=%d", fallback.hits)
	}
}

func TestFallbackClientFallsBack(t *testing.T) {
	primary := &stubClient{err: errors.New("down")}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, nil)

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "fallback" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestFallbackClientBothFail(t *testing.T) {
	primary := &stubClient{err: errors.New("down")}
	fallback := &stubClient{err: errors.New("also down")}
	client := NewFallbackClient(primary, fallback, nil)

	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFallbackClientNoFallbackConfigured(t *testing.T) {
	primary := &stubClient{err: errors.New("down")}
	client := NewFallbackClient(primary, nil, nil)

	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected primary error")
	}
}

func TestFallbackClientReportsEveryFailure(t *testing.T) {
	primaryErr := errors.New("throttled")
	fallbackErr := errors.New("quota exhausted")
	client := NewFallbackClient(&stubClient{err: primaryErr}, &stubClient{err: fallbackErr}, nil)

	_, err := client.Complete(context.Background(), Request{})
	if !errors.Is(err, primaryErr) {
		t.Errorf("primary error missing from %v", err)
	}
	if !errors.Is(err, fallbackErr) {
		t.Errorf("fallback error missing from %v", err)
	}
}

func TestFallbackClientSkipsStandbyWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubClient{err: context.Canceled}
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	client := NewFallbackClient(primary, fallback, nil)

	if _, err := client.Complete(ctx, Request{}); err == nil {
		t.Fatal("expected error")
	}
	if fallback.hits != 0 {
		t.Errorf("standby should not run on a canceled context, hits=%d", fallback.hits)
	}
}
