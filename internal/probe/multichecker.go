package probe

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/multierr"
)

// FallbackChecker runs its strategies in order until one succeeds. A timeout
// in any strategy makes the combined failure a timeout.
type FallbackChecker struct {
	Checkers []Checker
}

func NewFallbackChecker(checkers ...Checker) *FallbackChecker {
	return &FallbackChecker{Checkers: checkers}
}

func (m *FallbackChecker) Check(ctx context.Context, target string) CheckResult {
	var (
		errs    error
		kind    Kind
		names   []string
		latency float64
	)
	for _, c := range m.Checkers {
		if ctx.Err() != nil {
			break
		}
		r := c.Check(ctx, target)
		if r.Success {
			return r
		}
		if kind != KindTimeout {
			kind = r.Kind
		}
		latency += r.LatencyMS
		names = append(names, r.Name)
		errs = multierr.Append(errs, errors.New(r.Name+": "+r.Message))
	}
	if len(names) == 0 {
		return CheckResult{Name: "fallback", Kind: KindTimeout, Message: "no strategy ran"}
	}

	return CheckResult{
		Name:      strings.Join(names, "+"),
		Kind:      kind,
		Message:   errs.Error(),
		LatencyMS: latency,
	}
}
