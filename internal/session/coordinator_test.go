package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/session"
)

// instantPolicy retries without real delays and records how often the
// sleeper ran.
func instantPolicy(sleeps *atomic.Int32) session.Policy {
	return session.Policy{
		Interval: time.Millisecond,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			if sleeps != nil {
				sleeps.Add(1)
			}
			return ctx.Err()
		},
	}
}

func TestAcquire_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "want POST", http.StatusMethodNotAllowed)
			return
		}
		if calls.Add(1) < 3 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"meeting_id": "abc-123"})
	}))
	defer srv.Close()

	var sleeps atomic.Int32
	c, err := session.NewCoordinator(srv.URL, session.WithPolicy(instantPolicy(&sleeps)))
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	id, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if id != "abc-123" {
		t.Errorf("id = %q, want %q", id, "abc-123")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if got := sleeps.Load(); got != 2 {
		t.Errorf("sleeps between attempts = %d, want 2", got)
	}
}

func TestAcquire_AcceptsAlternateIDFields(t *testing.T) {
	t.Parallel()
	for _, field := range []string{"meeting_id", "session_id", "id"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{field: "sess-1"})
		}))

		c, err := session.NewCoordinator(srv.URL, session.WithPolicy(instantPolicy(nil)))
		if err != nil {
			t.Fatalf("NewCoordinator: %v", err)
		}
		id, err := c.Acquire(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("Acquire with field %q: %v", field, err)
		}
		if id != "sess-1" {
			t.Errorf("field %q: id = %q, want sess-1", field, id)
		}
	}
}

func TestAcquire_RetriesOnInvalidPayload(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "no id here"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"meeting_id": "second-try"})
	}))
	defer srv.Close()

	c, err := session.NewCoordinator(srv.URL, session.WithPolicy(instantPolicy(nil)))
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	id, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if id != "second-try" {
		t.Errorf("id = %q, want second-try", id)
	}
}

func TestAcquire_ContextCancellationAborts(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "never ready", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, err := session.NewCoordinator(srv.URL, session.WithPolicy(session.Policy{
		Interval: time.Millisecond,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel() // cancel during the first backoff
			return ctx.Err()
		},
	}))
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	if _, err := c.Acquire(ctx); err == nil {
		t.Fatal("expected error after context cancellation, got nil")
	}
}

func TestPolicy_BoundedAttempts(t *testing.T) {
	t.Parallel()
	var calls int
	p := session.Policy{
		Interval:    time.Millisecond,
		MaxAttempts: 3,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded // any persistent failure
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts, got nil")
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}
