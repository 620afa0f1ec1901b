// Package probe performs single bounded-time TCP connect attempts.
package probe

import (
	"context"
	"net"
	"net/netip"
	"time"
)

//go:generate mockgen -source=probe.go -destination=mocks/mock_prober.go -package=mocks

// DefaultTimeout bounds a probe when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// Outcome is the result of one connect attempt.
type Outcome int

const (
	// Closed covers refused connections, timeouts and unreachable hosts alike.
	Closed Outcome = iota
	// Open means the TCP handshake completed.
	Open
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	if o == Open {
		return "open"
	}
	return "closed"
}

// Prober attempts a connection to one port of a target.
type Prober interface {
	// Probe returns Open if a connection to target:port could be established
	// within timeout. Implementations must not block past timeout.
	Probe(ctx context.Context, target netip.Addr, port uint16, timeout time.Duration) Outcome
}

// Dialer is the subset of net.Dialer used by TCPProber.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPProber performs TCP connect probes.
type TCPProber struct {
	timeout time.Duration
	dialer  Dialer
}

var _ Prober = (*TCPProber)(nil)

// NewTCPProber returns a prober bounded by timeout. A zero timeout uses DefaultTimeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &TCPProber{
		timeout: timeout,
		dialer:  &net.Dialer{},
	}
}

// WithDialer replaces the dialer, mainly for tests.
func (p *TCPProber) WithDialer(d Dialer) *TCPProber {
	p.dialer = d
	return p
}

// Timeout returns the bound used when Probe is given no timeout.
func (p *TCPProber) Timeout() time.Duration {
	return p.timeout
}

// Probe dials target:port once. Cancellation of ctx does not cut the attempt
// short; only timeout does. A non-positive timeout falls back to the prober's own.
func (p *TCPProber) Probe(ctx context.Context, target netip.Addr, port uint16, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = p.timeout
	}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	addr := netip.AddrPortFrom(target, port)

	conn, err := p.dialer.DialContext(probeCtx, "tcp", addr.String())
	if err != nil {
		return Closed
	}

	_ = conn.Close()

	return Open
}
