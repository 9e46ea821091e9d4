package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBatchProcessor_Process(t *testing.T) {
	processor := NewBatchProcessor[string](2, time.Second)
	ids := []string{"c.pdf", "a.pdf", "b.pdf"}

	results := processor.Process(context.Background(), ids, func(ctx context.Context, id string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "doc:" + id, nil
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.ID != ids[i] {
			t.Errorf("result %d: expected id %s in input order, got %s", i, ids[i], res.ID)
		}
		if res.Err != nil {
			t.Errorf("unexpected error for %s: %v", res.ID, res.Err)
		}
		if res.Value != "doc:"+ids[i] {
			t.Errorf("unexpected value %q", res.Value)
		}
	}
}

func TestBatchProcessor_ItemFailureDoesNotAbort(t *testing.T) {
	processor := NewBatchProcessor[int](3, time.Second)
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("source-%02d", i)
	}

	results := processor.Process(context.Background(), ids, func(ctx context.Context, id string) (int, error) {
		if id == "source-04" {
			return 0, errors.New("corrupt file")
		}
		return 1, nil
	})

	failed := Failed(results)
	if len(failed) != 1 || failed[0].ID != "source-04" {
		t.Fatalf("expected only source-04 to fail, got %+v", failed)
	}
	ok := 0
	for _, r := range results {
		ok += r.Value
	}
	if ok != 9 {
		t.Errorf("expected 9 successful items, got %d", ok)
	}
}

func TestBatchProcessor_Timeout(t *testing.T) {
	processor := NewBatchProcessor[int](2, 20*time.Millisecond)

	results := processor.Process(context.Background(), []string{"slow", "fast"}, func(ctx context.Context, id string) (int, error) {
		if id == "slow" {
			// Ignores ctx on purpose
			time.Sleep(500 * time.Millisecond)
		}
		return 1, nil
	})

	if !errors.Is(results[0].Err, ErrTimeout) {
		t.Errorf("expected ErrTimeout for slow item, got %v", results[0].Err)
	}
	if results[0].Duration >= 500*time.Millisecond {
		t.Errorf("timed out item should not stall the worker, took %v", results[0].Duration)
	}
	if results[1].Err != nil {
		t.Errorf("fast item should succeed, got %v", results[1].Err)
	}
}

func TestBatchProcessor_Panic(t *testing.T) {
	processor := NewBatchProcessor[int](1, time.Second)

	results := processor.Process(context.Background(), []string{"bad"}, func(ctx context.Context, id string) (int, error) {
		panic("malformed xref")
	})

	if results[0].Err == nil {
		t.Fatal("expected panic to be recorded as an error")
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor[int](2, time.Second)
	results := processor.Process(ctx, []string{"a", "b", "c"}, func(ctx context.Context, id string) (int, error) {
		return 1, nil
	})

	if len(results) != 3 {
		t.Fatalf("expected a result per id, got %d", len(results))
	}
	for _, r := range results {
		if r.Err == nil && r.Value != 1 {
			t.Errorf("unexpected result %+v", r)
		}
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	results := NewBatchProcessor[int](2, time.Second).Process(context.Background(), nil, nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
