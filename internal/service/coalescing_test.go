package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	var joins int32
	coalescer := newRequestCoalescer[string](5*time.Second, func() { atomic.AddInt32(&joins, 1) })
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "fire", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "type:fire", fn)
		}(i)
	}
	// Let every caller register before the shared call returns.
	for atomic.LoadInt32(&joins) < 9 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if results[i] != "fire" {
			t.Errorf("Request %d result = %q, want fire", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", got)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[int](5*time.Second, nil)
	wantErr := errors.New("api failure")

	_, err := coalescer.GetOrDo(context.Background(), "k", func(context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_GetOrDo_CallerCancellation(t *testing.T) {
	coalescer := newRequestCoalescer[int](5*time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var sharedCtxErr atomic.Value
	finished := make(chan struct{})
	_, err := coalescer.GetOrDo(ctx, "slow", func(callCtx context.Context) (int, error) {
		defer close(finished)
		time.Sleep(60 * time.Millisecond)
		if callCtx.Err() != nil {
			sharedCtxErr.Store(callCtx.Err())
		}
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}

	<-finished
	if v := sharedCtxErr.Load(); v != nil {
		t.Errorf("shared call context was cancelled with the caller: %v", v)
	}
}

func TestRequestCoalescer_GetOrDo_SharedCallTimeout(t *testing.T) {
	coalescer := newRequestCoalescer[int](20*time.Millisecond, nil)
	_, err := coalescer.GetOrDo(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[string](5*time.Second, nil)
	var calls int32
	fn := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}

	for _, key := range []string{"a", "b", "c"} {
		if _, err := coalescer.GetOrDo(context.Background(), key, fn); err != nil {
			t.Fatalf("GetOrDo(%s) error = %v", key, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fn call count = %d, want 3", got)
	}
}

func TestRequestCoalescer_SequentialCallsRunAgain(t *testing.T) {
	coalescer := newRequestCoalescer[int](5*time.Second, nil)
	var calls int32
	fn := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	first, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	second, _ := coalescer.GetOrDo(context.Background(), "k", fn)
	if first != 1 || second != 2 {
		t.Errorf("results = %d, %d; completed calls must not be reused", first, second)
	}
}
