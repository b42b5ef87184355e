// Package session acquires the opaque session identifier that groups all
// transcriptions produced during one continuous run.
//
// Acquisition happens exactly once at startup and blocks the rest of the
// process: the capture loop must not start before a session exists. The
// provider is retried at a fixed interval indefinitely — this is the only
// place the system deliberately stalls rather than proceeding degraded.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ID is the opaque session identifier. It is immutable after acquisition
// and safe to share read-only across goroutines.
type ID string

// ErrInvalidResponse is returned when the provider answers with a payload
// that carries no recognisable identifier.
var ErrInvalidResponse = errors.New("session: provider response carries no identifier")

// Coordinator obtains a session identifier from an external HTTP provider.
type Coordinator struct {
	endpoint   string
	policy     Policy
	httpClient *http.Client
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithPolicy overrides the default retry policy (5s fixed interval,
// unbounded attempts).
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithHTTPClient overrides the default HTTP client (10s timeout).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) { c.httpClient = client }
}

// NewCoordinator creates a Coordinator that POSTs to endpoint.
func NewCoordinator(endpoint string, opts ...Option) (*Coordinator, error) {
	if endpoint == "" {
		return nil, errors.New("session: endpoint must not be empty")
	}
	c := &Coordinator{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Acquire requests a session identifier, retrying per the configured policy
// until the provider returns one or ctx is cancelled.
func (c *Coordinator) Acquire(ctx context.Context) (ID, error) {
	var id ID
	attempt := 0
	err := c.policy.Run(ctx, func(ctx context.Context) error {
		attempt++
		acquired, err := c.acquireOnce(ctx)
		if err != nil {
			slog.Warn("session acquisition failed, will retry",
				"endpoint", c.endpoint, "attempt", attempt, "error", err)
			return err
		}
		id = acquired
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session: acquire: %w", err)
	}
	slog.Info("session acquired", "session_id", string(id), "attempts", attempt)
	return id, nil
}

// acquireOnce performs a single POST to the provider and extracts the
// identifier from the JSON response.
func (c *Coordinator) acquireOnce(ctx context.Context) (ID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	return parseID(data)
}

// idFields lists the JSON keys accepted as the identifier, in preference
// order. Meeting providers typically answer {"meeting_id": "<uuid>"}.
var idFields = []string{"meeting_id", "session_id", "id"}

// parseID extracts the identifier from a provider response body.
func parseID(data []byte) (ID, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse JSON response: %w", err)
	}
	for _, field := range idFields {
		if v, ok := payload[field].(string); ok && strings.TrimSpace(v) != "" {
			return ID(strings.TrimSpace(v)), nil
		}
	}
	return "", ErrInvalidResponse
}
