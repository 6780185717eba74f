// Package probe performs single reachability checks against an address.
//
// Failures are values, not errors: every outcome is a Result with
// Reachable=false and a Kind describing why.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
)

// Kind classifies an unsuccessful check.
type Kind string

const (
	KindNone    Kind = ""
	KindTimeout Kind = "timeout"
	KindError   Kind = "error"
	KindDNS     Kind = "dns"
)

// CheckResult is the unified result of a single strategy.
//
// StatusCode is only set by HTTP checks; 0 for transport/DNS errors.
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Kind       Kind    `json:"kind,omitempty"`
	Message    string  `json:"message"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
	StatusCode int     `json:"status_code,omitempty"`
}

// Checker performs a single check for a given target address.
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}

// Result is what the rest of the system sees of a probe.
type Result struct {
	Reachable bool      `json:"reachable"`
	CheckedAt time.Time `json:"checked_at"`
	LatencyMS *float64  `json:"latency_ms,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

const DefaultTimeout = 2 * time.Second

// Prober resolves the address and runs the checker. Timeout bounds each
// stage: resolution gets one Timeout and the checker gets its full budget
// (see BudgetOf), so Probe never returns later than their sum.
type Prober struct {
	Checker  Checker
	Resolver Resolver
	Timeout  time.Duration
	Clock    clock.Clock
}

// NewProber returns a prober using checker with the system resolver.
func NewProber(checker Checker, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		Checker:  checker,
		Resolver: net.DefaultResolver,
		Timeout:  timeout,
		Clock:    clock.New(),
	}
}

// Probe checks address once.
func (p *Prober) Probe(ctx context.Context, address string) Result {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	res := Result{CheckedAt: clk.Now().UTC()}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	host := HostOf(address)
	if net.ParseIP(host) == nil && p.Resolver != nil {
		dctx, dcancel := context.WithTimeout(ctx, timeout)
		dns := CheckDNS(dctx, p.Resolver, host)
		dcancel()
		if dns.Class != DNSResolves {
			res.Kind = KindDNS
			res.Message = fmt.Sprintf("%s: %s", host, dns.Class)
			if dns.ResolverError != "" {
				res.Message += ": " + dns.ResolverError
			}
			return res
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.Budget())
	defer cancel()

	done := make(chan CheckResult, 1)
	go func() { done <- p.Checker.Check(ctx, address) }()

	var out CheckResult
	select {
	case out = <-done:
	case <-ctx.Done():
		out = CheckResult{Kind: KindTimeout, Message: ctx.Err().Error()}
	}

	res.Reachable = out.Success
	if out.Success {
		lat := out.LatencyMS
		res.LatencyMS = &lat
		return res
	}
	res.Kind = out.Kind
	if res.Kind == KindNone {
		res.Kind = KindError
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Kind = KindTimeout
	}
	res.Message = out.Message
	return res
}

// Budget is the longest the checker may run in one call.
func (p *Prober) Budget() time.Duration {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return BudgetOf(p.Checker, timeout)
}

// MaxDuration bounds a whole Probe call, resolution included.
func (p *Prober) MaxDuration() time.Duration {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return timeout + p.Budget()
}

// kindOf maps a transport error to a Kind.
func kindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return KindDNS
	}
	return KindError
}

func sinceMS(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000
}
