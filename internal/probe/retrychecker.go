package probe

import (
	"context"
	"time"
)

type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Success {
			return last
		}
		if i == attempts-1 {
			break
		}
		if r.Backoff > 0 {
			t := time.NewTimer(r.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				last.Message += " (retry aborted)"
				return last
			case <-t.C:
			}
		}
	}
	if attempts > 1 {
		last.Message += " (after retries)"
	}
	return last
}
