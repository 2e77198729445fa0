package fanout

import (
	"context"
	"sync"
	"time"
)

// RunChunked partitions items into consecutive batches of batchSize and
// runs fn concurrently within each batch, waiting for the whole batch to
// settle before starting the next. A delay is inserted between batches
// (never after the last) to stay under upstream rate limits. Outcomes are
// returned in submitted order regardless of completion order; a failed
// item simply leaves its zero value at its position and never aborts its
// siblings. Cancelling ctx stops further batches from being scheduled.
func RunChunked[I, O any](ctx context.Context, items []I, fn func(ctx context.Context, item I) O, batchSize int, delay time.Duration) []O {
	out := make([]O, len(items))
	if len(items) == 0 {
		return out
	}
	if batchSize <= 0 {
		batchSize = len(items)
	}
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = fn(ctx, items[i])
			}(i)
		}
		wg.Wait()
		if ctx.Err() != nil {
			return out
		}
		if end < len(items) && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return out
			case <-t.C:
			}
		}
	}
	return out
}
