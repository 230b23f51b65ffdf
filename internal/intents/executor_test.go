package intents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

func newTestExecutor(baseURL string) *Executor {
	e := NewExecutor(baseURL, time.Second, logging.Default())
	e.sleep = func(time.Duration) {}
	return e
}

func TestExecuteSuccessSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var params map[string]string
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		if params["date"] != "2026-09-15" {
			t.Errorf("params = %v", params)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "Booking confirmed for Sept 15."})
	}))
	defer srv.Close()

	action := &ResolvedAction{
		Intent:      "agendar_cita",
		ActionName:  "create_booking",
		APIEndpoint: "/api/bookings",
		Method:      "POST",
		Parameters:  map[string]string{"date": "2026-09-15", "email": "ana@example.com"},
	}
	result := newTestExecutor(srv.URL).Execute(context.Background(), action)

	if !result.Success {
		t.Fatal("expected success")
	}
	if result.Message != "Booking confirmed for Sept 15." {
		t.Errorf("message = %q", result.Message)
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
	if len(result.Calls) != 1 || !result.Calls[0].Success || result.Calls[0].StatusCode != 200 {
		t.Errorf("calls = %+v", result.Calls)
	}
}

func TestExecuteRetriesServerErrorsThreeTimes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	action := &ResolvedAction{ActionName: "create_booking", APIEndpoint: "/api/bookings", Parameters: map[string]string{}}
	result := newTestExecutor(srv.URL).Execute(context.Background(), action)

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
	if len(result.Calls) != 3 {
		t.Fatalf("recorded calls = %d, want 3", len(result.Calls))
	}
	for i, c := range result.Calls {
		if c.Success || c.StatusCode != 500 {
			t.Errorf("call %d = %+v", i, c)
		}
	}
}

func TestExecuteClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	action := &ResolvedAction{ActionName: "create_booking", APIEndpoint: "/api/bookings", Parameters: map[string]string{}}
	result := newTestExecutor(srv.URL).Execute(context.Background(), action)

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is terminal)", calls.Load())
	}
	if len(result.Calls) != 1 || result.Calls[0].StatusCode != 400 {
		t.Errorf("calls = %+v", result.Calls)
	}
}

func TestExecuteRecoversAfterTransientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "ok"})
	}))
	defer srv.Close()

	action := &ResolvedAction{ActionName: "list_packages", APIEndpoint: "/api/packages", Parameters: map[string]string{}}
	result := newTestExecutor(srv.URL).Execute(context.Background(), action)

	if !result.Success {
		t.Fatal("expected eventual success")
	}
	if len(result.Calls) != 3 {
		t.Fatalf("recorded calls = %d, want 3", len(result.Calls))
	}
	if result.Calls[0].Success || result.Calls[1].Success || !result.Calls[2].Success {
		t.Errorf("calls = %+v", result.Calls)
	}
}

func TestExecuteBusinessRejectionIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "slot already taken"})
	}))
	defer srv.Close()

	action := &ResolvedAction{ActionName: "create_booking", APIEndpoint: "/api/bookings", Parameters: map[string]string{}}
	result := newTestExecutor(srv.URL).Execute(context.Background(), action)

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
	if result.Message != "slot already taken" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestExecuteStaticActionSkipsHTTP(t *testing.T) {
	action := &ResolvedAction{
		Intent:            "saludo",
		ActionName:        "greeting",
		StaticDescription: "¡Hola!",
	}
	result := newTestExecutor("http://127.0.0.1:1").Execute(context.Background(), action)
	if !result.Success || result.Message != "¡Hola!" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Calls) != 0 {
		t.Errorf("expected no API calls, got %+v", result.Calls)
	}
}

func TestExecuteNetworkErrorRetries(t *testing.T) {
	action := &ResolvedAction{ActionName: "create_booking", APIEndpoint: "http://127.0.0.1:1/api/bookings", Parameters: map[string]string{}}
	result := newTestExecutor("").Execute(context.Background(), action)
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.Calls) != 3 {
		t.Errorf("recorded calls = %d, want 3", len(result.Calls))
	}
}
