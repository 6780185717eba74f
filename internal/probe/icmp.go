package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// ICMPChecker sends one echo request and waits for the matching reply.
//
// It first tries an unprivileged datagram socket and falls back to a raw
// socket, which needs CAP_NET_RAW.
type ICMPChecker struct {
	Timeout time.Duration
	seq     atomic.Uint32
}

func NewICMPChecker(timeout time.Duration) *ICMPChecker {
	return &ICMPChecker{Timeout: timeout}
}

func (c *ICMPChecker) Check(ctx context.Context, target string) CheckResult {
	host := HostOf(target)
	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil || len(addrs) == 0 {
			if err == nil {
				err = fmt.Errorf("no address for %s", host)
			}
			return CheckResult{Name: "ICMP", Kind: KindDNS, Message: err.Error()}
		}
		ip = addrs[0].IP
	}

	start := time.Now()
	err := c.echo(ctx, ip)
	latency := sinceMS(start)
	if err != nil {
		return CheckResult{Name: "ICMP", Kind: kindOf(err), Message: err.Error(), LatencyMS: latency}
	}
	return CheckResult{Name: "ICMP", Success: true, Message: "echo reply from " + ip.String(), LatencyMS: latency}
}

type icmpFamily struct {
	network string
	raw     string
	listen  string
	proto   int
	request icmp.Type
	reply   icmp.Type
}

var (
	familyV4 = icmpFamily{"udp4", "ip4:icmp", "0.0.0.0", protocolICMP, ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply}
	familyV6 = icmpFamily{"udp6", "ip6:ipv6-icmp", "::", protocolIPv6ICMP, ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply}
)

func (c *ICMPChecker) echo(ctx context.Context, ip net.IP) error {
	fam := familyV6
	if ip.To4() != nil {
		fam = familyV4
	}

	privileged := false
	conn, err := icmp.ListenPacket(fam.network, fam.listen)
	if err != nil {
		conn, err = icmp.ListenPacket(fam.raw, fam.listen)
		if err != nil {
			return fmt.Errorf("icmp listen: %w", err)
		}
		privileged = true
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(c.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	seq := int(c.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: fam.request,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: []byte("linkmonitor")},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		dst = &net.IPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(b, dst); err != nil {
		return ctxErr(ctx, err)
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return ctxErr(ctx, err)
		}
		rm, err := icmp.ParseMessage(fam.proto, buf[:n])
		if err != nil || rm.Type != fam.reply {
			continue
		}
		// Datagram sockets rewrite the echo ID, so only Seq is matched.
		if e, ok := rm.Body.(*icmp.Echo); ok && e.Seq == seq {
			return nil
		}
	}
}

func (c *ICMPChecker) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// ctxErr prefers the context error over the "use of closed connection" error
// produced when cancellation closes the socket.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%w: %v", cerr, err)
	}
	return err
}
