package intr

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

// syncBuffer is a bytes.Buffer safe for concurrent writes, for capturing logs.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the non-empty lines containing substr.
func (b *syncBuffer) Lines(substr string) []string {
	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line != "" && strings.Contains(line, substr) {
			lines = append(lines, line)
		}
	}
	return lines
}

// waitFor polls cond until it returns true, failing the test on timeout.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for: %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}

// recv receives from ch, failing the test on timeout.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for channel receive")
		panic("unreachable")
	}
}

// shutdown stops c, failing the test if it takes too long.
func shutdown(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

// newTestController creates a controller, registering cleanup.
func newTestController(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// countingHandler records each invocation on a buffered channel.
type countingHandler struct {
	calls chan EventID
	dev   any
	err   error
	mu    sync.Mutex
	n     int
}

func newCountingHandler() *countingHandler {
	return &countingHandler{calls: make(chan EventID, 1024)}
}

func (h *countingHandler) HandleIRQ(id EventID, dev any) error {
	h.mu.Lock()
	h.n++
	h.dev = dev
	h.mu.Unlock()
	h.calls <- id
	return h.err
}

func (h *countingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func (h *countingHandler) Device() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dev
}
