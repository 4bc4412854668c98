package service

import (
	"context"
	"sync"
	"time"
)

const defaultCoalesceTimeout = 10 * time.Second

// inFlightRequest tracks a single upstream request that multiple callers may wait for.
type inFlightRequest[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer collapses concurrent lookups for the same key into one upstream call.
// Countries sharing a biome type ask for the same type listing, and a popular species is
// looked up by many clients at once.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest[T]
	timeout  time.Duration
	onJoin   func()
}

// newRequestCoalescer creates a coalescer. timeout bounds the shared call; onJoin, if
// set, runs each time a caller joins a call already in flight.
func newRequestCoalescer[T any](timeout time.Duration, onJoin func()) *requestCoalescer[T] {
	if timeout <= 0 {
		timeout = defaultCoalesceTimeout
	}
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightRequest[T]),
		timeout:  timeout,
		onJoin:   onJoin,
	}
}

// GetOrDo returns the result of the in-flight call for key, starting fn if none is
// running. fn receives a context detached from any single caller so one client going
// away does not fail the others. Each caller still stops waiting when its own ctx ends.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		rc.mu.Unlock()
		if rc.onJoin != nil {
			rc.onJoin()
		}
		return rc.wait(ctx, req)
	}

	req = &inFlightRequest[T]{done: make(chan struct{})}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	go func() {
		defer cancel()
		req.result, req.err = fn(callCtx)
		rc.cleanup(key)
		close(req.done)
	}()

	return rc.wait(ctx, req)
}

func (rc *requestCoalescer[T]) wait(ctx context.Context, req *inFlightRequest[T]) (T, error) {
	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// cleanup removes the in-flight request for key. Must be called after request completes.
func (rc *requestCoalescer[T]) cleanup(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inFlight, key)
}
