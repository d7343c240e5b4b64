package workerpool

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolCollectsAllResults(t *testing.T) {
	pool := New[int, int](4, 10)
	pool.Start(func(n int) int { return n * n })
	for i := 0; i < 10; i++ {
		pool.Submit(i)
	}
	pool.Close()

	var got []int
	for r := range pool.Results() {
		got = append(got, r)
	}
	sort.Ints(got)
	if len(got) != 10 || got[0] != 0 || got[9] != 81 {
		t.Errorf("results = %v", got)
	}
}

func TestPoolSizing(t *testing.T) {
	tests := []struct {
		workers, jobs, want int
	}{
		{8, 3, 3},
		{2, 10, 2},
		{0, 1, 1},
		{0, 0, DefaultWorkers()},
	}
	for _, tt := range tests {
		if got := New[int, int](tt.workers, tt.jobs).Workers(); got != tt.want {
			t.Errorf("New(%d, %d).Workers() = %d, want %d", tt.workers, tt.jobs, got, tt.want)
		}
	}
}

func TestMapPreservesOrder(t *testing.T) {
	jobs := []string{"a", "bb", "ccc", "dddd"}
	got, err := Map(context.Background(), 2, jobs, func(_ context.Context, s string) (int, error) {
		return len(s), nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i, n := range got {
		if n != i+1 {
			t.Errorf("got[%d] = %d, want %d", i, n, i+1)
		}
	}
}

func TestMapEmpty(t *testing.T) {
	got, err := Map(context.Background(), 0, []int(nil), func(context.Context, int) (int, error) {
		t.Fatal("fn called for empty input")
		return 0, nil
	})
	if err != nil || len(got) != 0 {
		t.Errorf("Map(nil) = %v, %v", got, err)
	}
}

func TestMapReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32
	_, err := Map(context.Background(), 1, []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Map error = %v, want boom", err)
	}
	if calls.Load() > 2 {
		t.Errorf("fn ran %d times after the failing job", calls.Load())
	}
}

func TestMapCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Map(ctx, 1, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Map error = %v, want DeadlineExceeded", err)
	}
}
