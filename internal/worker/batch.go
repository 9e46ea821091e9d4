package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrTimeout is returned for items that exceed their per-item deadline
var ErrTimeout = errors.New("item timed out")

// ItemFunc processes one item
type ItemFunc[T any] func(ctx context.Context, id string) (T, error)

// ItemJob runs an ItemFunc for one id under its own deadline
type ItemJob[T any] struct {
	Index   int
	ID      string
	Timeout time.Duration
	Fn      ItemFunc[T]
}

// ItemResult is the outcome of one item; failures are data, not aborts
type ItemResult[T any] struct {
	Index    int
	ID       string
	Value    T
	Err      error
	Duration time.Duration
}

// GetError returns the item error
func (r *ItemResult[T]) GetError() error {
	return r.Err
}

// Execute runs the item function. The function runs in its own goroutine so a
// call that ignores its context still cannot stall the worker past the deadline.
func (j *ItemJob[T]) Execute(ctx context.Context) Result {
	start := time.Now()
	res := &ItemResult[T]{Index: j.Index, ID: j.ID}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("panic: %v", r)
			}
			done <- out
		}()
		out.value, out.err = j.Fn(ctx, j.ID)
	}()

	select {
	case out := <-done:
		res.Value, res.Err = out.value, out.err
		if errors.Is(res.Err, context.DeadlineExceeded) && j.Timeout > 0 {
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, j.Timeout)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, j.Timeout)
		} else {
			res.Err = ctx.Err()
		}
	}

	res.Duration = time.Since(start)
	return res
}

// BatchProcessor runs an item function over many ids on a worker pool
type BatchProcessor[T any] struct {
	concurrency int
	timeout     time.Duration
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor[T any](concurrency int, timeout time.Duration) *BatchProcessor[T] {
	return &BatchProcessor[T]{
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Process runs fn for every id and returns one result per id, in input order.
// Ids not started because ctx was cancelled are reported with ctx's error.
func (b *BatchProcessor[T]) Process(ctx context.Context, ids []string, fn ItemFunc[T]) []*ItemResult[T] {
	if len(ids) == 0 {
		return []*ItemResult[T]{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, id := range ids {
		job := &ItemJob[T]{
			Index:   i,
			ID:      id,
			Timeout: b.timeout,
			Fn:      fn,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*ItemResult[T], len(ids))
	for _, r := range results {
		item := r.(*ItemResult[T])
		out[item.Index] = item
	}
	for i, id := range ids {
		if out[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &ItemResult[T]{Index: i, ID: id, Err: err}
		}
	}

	return out
}

// Failed returns the results that carry an error, ordered by id
func Failed[T any](results []*ItemResult[T]) []*ItemResult[T] {
	var failed []*ItemResult[T]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].ID < failed[j].ID })
	return failed
}
