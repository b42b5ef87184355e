// Package mock provides a configurable in-memory stt.Backend for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meetscribe/meetscribe/pkg/provider/stt"
)

// Compile-time assertion that Backend satisfies stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// Backend is a test double for stt.Backend. The zero value returns empty
// text immediately for every call.
type Backend struct {
	// Text is returned by every Transcribe call.
	Text string

	// Err is returned by every Transcribe call.
	Err error

	// Delay is how long each Transcribe call blocks before returning,
	// simulating model inference time.
	Delay time.Duration

	calls atomic.Int64

	mu       sync.Mutex
	received [][]int16
	tasks    []stt.Task
}

// Transcribe records the call and returns the configured text and error
// after the configured delay.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, task stt.Task) (string, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.received = append(b.received, append([]int16(nil), samples...))
	b.tasks = append(b.tasks, task)
	b.mu.Unlock()

	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return b.Text, b.Err
}

// Calls returns how many times Transcribe has been invoked.
func (b *Backend) Calls() int {
	return int(b.calls.Load())
}

// Received returns copies of the sample buffers passed to Transcribe, in
// call order.
func (b *Backend) Received() [][]int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]int16, len(b.received))
	copy(out, b.received)
	return out
}

// Tasks returns the task values passed to Transcribe, in call order.
func (b *Backend) Tasks() []stt.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]stt.Task(nil), b.tasks...)
}
