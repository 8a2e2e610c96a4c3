package engine

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPoolKeepsInputOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	var calls atomic.Int64
	for _, workers := range []int{0, 1, 3, 500} {
		calls.Store(0)
		got := runPool(context.Background(), quietLogger(), workers, items, func(_ context.Context, n int) int {
			calls.Add(1)
			return n * n
		})
		if len(got) != len(items) {
			t.Fatalf("workers=%d: got %d results, want %d", workers, len(got), len(items))
		}
		for i, v := range got {
			if v != i*i {
				t.Fatalf("workers=%d: result %d = %d, want %d", workers, i, v, i*i)
			}
		}
		if calls.Load() != int64(len(items)) {
			t.Fatalf("workers=%d: fn called %d times, want %d", workers, calls.Load(), len(items))
		}
	}
}

func TestRunPoolEmpty(t *testing.T) {
	got := runPool(context.Background(), quietLogger(), 4, []string(nil), func(context.Context, string) int { return 1 })
	if len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}

func TestRunPoolLogsProgress(t *testing.T) {
	saved := progressInterval
	progressInterval = 5 * time.Millisecond
	defer func() { progressInterval = saved }()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	items := make([]int, 10)
	runPool(context.Background(), logger, 1, items, func(context.Context, int) int {
		time.Sleep(10 * time.Millisecond)
		return 0
	})

	out := buf.String()
	if !strings.Contains(out, `"msg":"Progress"`) || !strings.Contains(out, `"total_tasks":10`) {
		t.Fatalf("expected progress records, got %s", out)
	}
}
