// SPDX-License-Identifier: MPL-2.0

package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
)

func TestEmitReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	e := NewEmitter[int]("test", nil)
	var sum atomic.Int64
	for range 3 {
		e.Subscribe(func(_ context.Context, v int) error {
			sum.Add(int64(v))
			return nil
		})
	}

	e.Emit(t.Context(), 2)

	if got := sum.Load(); got != 6 {
		t.Errorf("sum = %d, want 6", got)
	}
}

func TestEmitIsolatesFailingSubscribers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var bufMu sync.Mutex
	logger := log.NewWithOptions(&lockedWriter{w: &buf, mu: &bufMu}, log.Options{})
	e := NewEmitter[string]("update", logger)

	var delivered atomic.Int32
	e.Subscribe(func(context.Context, string) error { panic("boom") })
	e.Subscribe(func(context.Context, string) error { return errors.New("refused") })
	e.Subscribe(func(_ context.Context, v string) error {
		if v == "evt" {
			delivered.Add(1)
		}
		return nil
	})

	e.Emit(t.Context(), "evt")

	if delivered.Load() != 1 {
		t.Fatalf("healthy subscriber did not receive the event")
	}
	bufMu.Lock()
	out := buf.String()
	bufMu.Unlock()
	if !strings.Contains(out, "boom") || !strings.Contains(out, "refused") {
		t.Errorf("expected both failures to be logged, got %q", out)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	t.Parallel()

	e := NewEmitter[int]("test", nil)
	var calls atomic.Int32
	keep := e.Subscribe(func(context.Context, int) error {
		calls.Add(1)
		return nil
	})
	sub := e.Subscribe(func(context.Context, int) error {
		calls.Add(100)
		return nil
	})

	sub.Dispose()
	sub.Dispose()

	if e.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Len())
	}

	e.Emit(t.Context(), 0)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}

	keep.Dispose()
	e.Emit(t.Context(), 0)
	if calls.Load() != 1 {
		t.Errorf("disposed subscriber was still invoked")
	}
}

func TestEmitWithoutSubscribers(t *testing.T) {
	t.Parallel()

	e := NewEmitter[int]("empty", nil)
	e.Emit(t.Context(), 1)

	var nilSub *Subscription
	nilSub.Dispose()
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
