package probe

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fake checker you can control
type fakeChecker struct {
	results []CheckResult
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, target string) CheckResult {
	if f.i >= len(f.results) {
		return CheckResult{Success: false, Message: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Success: false, Message: "first fail"},
			{Success: true, Message: "ok"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
	}
	out := rc.Check(context.Background(), "10.0.0.1")
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryChecker_AllFailAnnotates(t *testing.T) {
	f := &fakeChecker{
		results: []CheckResult{
			{Success: false, Message: "fail1"},
			{Success: false, Message: "fail2"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 2,
		Backoff:  0,
	}
	out := rc.Check(context.Background(), "10.0.0.1")
	if out.Success {
		t.Fatalf("expected failure, got success")
	}
	if !strings.HasSuffix(out.Message, "(after retries)") {
		t.Fatalf("expected retry annotation, got %q", out.Message)
	}
}

func TestRetryChecker_BackoffHonoursContext(t *testing.T) {
	f := &fakeChecker{results: []CheckResult{{Message: "down"}, {Success: true}}}
	rc := &RetryChecker{Inner: f, Attempts: 2, Backoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := rc.Check(ctx, "10.0.0.1")
	if out.Success {
		t.Fatalf("expected failure, got success")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("backoff ignored context cancellation")
	}
	if f.i != 1 {
		t.Fatalf("expected a single attempt, got %d", f.i)
	}
}
