package probe

import (
	"context"
	"net"
	"time"
)

const DefaultTCPPort = 80

// TCPChecker considers a target reachable when a TCP handshake completes.
type TCPChecker struct {
	Port    int
	Timeout time.Duration
}

func NewTCPChecker(port int, timeout time.Duration) *TCPChecker {
	if port <= 0 {
		port = DefaultTCPPort
	}
	return &TCPChecker{Port: port, Timeout: timeout}
}

func (c *TCPChecker) Check(ctx context.Context, target string) CheckResult {
	addr := dialAddress(target, c.Port)
	d := net.Dialer{Timeout: c.Timeout}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	latency := sinceMS(start)
	if err != nil {
		return CheckResult{Name: "TCP", Kind: kindOf(err), Message: err.Error(), LatencyMS: latency}
	}
	_ = conn.Close()
	return CheckResult{Name: "TCP", Success: true, Message: "connected " + addr, LatencyMS: latency}
}
