package render

import (
	"context"
	"time"
)

// SettleResult reports how a settle wait ended.
type SettleResult struct {
	Settled   bool
	Remaining int
	Waited    time.Duration
}

// WaitForSettle polls set every interval until it is empty or timeout
// elapses. Reaching the timeout is not an error; the caller decides
// what to log. A canceled ctx ends the wait early with ctx.Err().
func WaitForSettle(ctx context.Context, set *PendingImageSet, interval, timeout time.Duration) (SettleResult, error) {
	start := time.Now()
	if set.Len() == 0 {
		return SettleResult{Settled: true, Waited: time.Since(start)}, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return SettleResult{Remaining: set.Len(), Waited: time.Since(start)}, ctx.Err()
		case <-deadline.C:
			n := set.Len()
			return SettleResult{Settled: n == 0, Remaining: n, Waited: time.Since(start)}, nil
		case <-ticker.C:
			if set.Len() == 0 {
				return SettleResult{Settled: true, Waited: time.Since(start)}, nil
			}
		}
	}
}
