package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// progressInterval is how often runPool logs completed work.
var progressInterval = 5 * time.Second

type job[T any] struct {
	index int
	item  T
}

// runPool feeds items to a fixed number of workers and blocks until every
// item has been processed. Results are returned in input order. Workers keep
// draining after ctx is cancelled so that every slot is filled; fn is
// expected to observe ctx itself.
func runPool[T, R any](ctx context.Context, logger *slog.Logger, workers int, items []T, fn func(context.Context, T) R) []R {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	var completed atomic.Int64
	progressDone := make(chan struct{})
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		reportProgress(logger, &completed, len(items), progressDone)
	}()

	jobs := make(chan job[T], workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Debug("Worker started", "id", id)
			n := 0
			for j := range jobs {
				results[j.index] = fn(ctx, j.item)
				completed.Add(1)
				n++
			}
			logger.Debug("Worker finished", "id", id, "tasks", n)
		}(i + 1)
	}

	for i, item := range items {
		jobs <- job[T]{index: i, item: item}
	}
	close(jobs)
	wg.Wait()
	close(progressDone)
	progressWG.Wait()
	return results
}

// reportProgress logs the completed count every progressInterval until done
// is closed, skipping ticks where nothing finished.
func reportProgress(logger *slog.Logger, completed *atomic.Int64, total int, done <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	var lastLogged int64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n := completed.Load()
			if n == lastLogged {
				continue
			}
			percent := float64(n) / float64(total) * 100
			logger.Info("Progress", "total_tasks", total, "completed_tasks", n, "remaining_tasks", int64(total)-n, "percent", fmt.Sprintf("%.2f", percent))
			lastLogged = n
		}
	}
}
