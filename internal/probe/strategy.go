package probe

import (
	"fmt"
	"strings"
	"time"
)

// Strategy names accepted in target configuration.
const (
	StrategyAuto = "auto"
	StrategyTCP  = "tcp"
	StrategyICMP = "icmp"
	StrategyHTTP = "http"
)

// Options configure the checker built by NewChecker.
type Options struct {
	Strategy      string
	Port          int
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// NewChecker builds the checker for one target. The auto strategy uses HTTP
// for URLs and otherwise a TCP handshake with ICMP echo as fallback.
func NewChecker(address string, o Options) (Checker, error) {
	var c Checker
	switch strings.ToLower(strings.TrimSpace(o.Strategy)) {
	case "", StrategyAuto:
		if IsURL(address) {
			c = NewHTTPChecker(o.Timeout)
		} else {
			c = NewFallbackChecker(NewTCPChecker(o.Port, o.Timeout), NewICMPChecker(o.Timeout))
		}
	case StrategyTCP:
		c = NewTCPChecker(o.Port, o.Timeout)
	case StrategyICMP:
		c = NewICMPChecker(o.Timeout)
	case StrategyHTTP:
		if !IsURL(address) {
			return nil, fmt.Errorf("http strategy needs an http(s) address, got %q", address)
		}
		c = NewHTTPChecker(o.Timeout)
	default:
		return nil, fmt.Errorf("unknown probe strategy %q", o.Strategy)
	}
	if o.RetryAttempts > 1 {
		c = &RetryChecker{Inner: c, Attempts: o.RetryAttempts, Backoff: o.RetryBackoff}
	}
	return c, nil
}
