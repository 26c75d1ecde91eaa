// SPDX-License-Identifier: MPL-2.0

// Package notify provides a typed fan-out event emitter.
//
// Subscribers run concurrently for every emitted value. A failing or panicking
// subscriber never prevents the others from observing the event: Emit waits
// for all of them to settle and logs failures instead of propagating them.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

type (
	// Listener handles a single emitted value.
	Listener[T any] func(ctx context.Context, value T) error

	// Subscription is the handle returned by Subscribe. Dispose removes the
	// listener; calling it more than once is a no-op.
	Subscription struct {
		once    sync.Once
		dispose func()
	}

	// Emitter fans a value out to all current subscribers.
	Emitter[T any] struct {
		mu     sync.Mutex
		nextID uint64
		subs   map[uint64]Listener[T]
		order  []uint64
		name   string
		logger *log.Logger
	}
)

// NewEmitter creates an emitter. name labels the emitter in failure logs.
// A nil logger discards failure reports.
func NewEmitter[T any](name string, logger *log.Logger) *Emitter[T] {
	return &Emitter[T]{
		subs:   make(map[uint64]Listener[T]),
		name:   name,
		logger: logger,
	}
}

// Dispose unregisters the listener behind s.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.dispose != nil {
			s.dispose()
		}
	})
}

// Subscribe registers listener and returns a disposable handle.
func (e *Emitter[T]) Subscribe(listener Listener[T]) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.subs[id] = listener
	e.order = append(e.order, id)

	return &Subscription{dispose: func() { e.unsubscribe(id) }}
}

// Len returns the number of active subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emit delivers value to every subscriber registered at call time and returns
// once all of them have completed, failed or panicked.
func (e *Emitter[T]) Emit(ctx context.Context, value T) {
	listeners := e.snapshot()
	if len(listeners) == 0 {
		return
	}

	var wg sync.WaitGroup
	errs := make([]error, len(listeners))
	for i, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = invoke(ctx, l, value)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil && e.logger != nil {
			e.logger.Error("subscriber failed", "emitter", e.name, "subscriber", i, "error", err)
		}
	}
}

func (e *Emitter[T]) snapshot() []Listener[T] {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Listener[T], 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.subs[id])
	}
	return out
}

func (e *Emitter[T]) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subs, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func invoke[T any](ctx context.Context, l Listener[T], value T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l(ctx, value)
}
