package probe

import "time"

// Budget is implemented by checkers that bound their own run time.
type Budget interface {
	Budget() time.Duration
}

// BudgetOf returns how long c may take in the worst case. Every fallback
// stage, retry attempt and backoff is counted; checkers that report no
// bound of their own are given stage.
func BudgetOf(c Checker, stage time.Duration) time.Duration {
	switch c := c.(type) {
	case *FallbackChecker:
		var total time.Duration
		for _, inner := range c.Checkers {
			total += BudgetOf(inner, stage)
		}
		return total
	case *RetryChecker:
		attempts := c.Attempts
		if attempts < 1 {
			attempts = 1
		}
		inner := BudgetOf(c.Inner, stage)
		return time.Duration(attempts)*inner + time.Duration(attempts-1)*c.Backoff
	case Budget:
		if b := c.Budget(); b > 0 {
			return b
		}
	}
	return stage
}

func (c *TCPChecker) Budget() time.Duration { return c.Timeout }

func (c *ICMPChecker) Budget() time.Duration { return c.timeout() }

// Budget covers the HEAD request and the GET it may fall back to.
func (h *HTTPChecker) Budget() time.Duration {
	if h.Client == nil {
		return 0
	}
	return 2 * h.Client.Timeout
}
