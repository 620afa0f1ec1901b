// Package resolve turns a scan target into the single address that is probed.
package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/portsniffer/internal/errors"
	"github.com/anstrom/portsniffer/internal/logging"
)

// DefaultTimeout bounds a lookup when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Lookup methods used for metrics and logs.
const (
	MethodLiteral = "literal"
	MethodSystem  = "system"
	MethodDNS     = "dns"
)

// LookupFunc resolves host to addresses of the given network ("ip4").
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// Recorder receives lookup metrics.
type Recorder interface {
	RecordLookup(method string, duration time.Duration, success bool)
}

// Resolver resolves literal addresses and host names.
type Resolver struct {
	nameserver string
	timeout    time.Duration
	lookup     LookupFunc
	recorder   Recorder
	logger     *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces the system resolver.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) {
		r.lookup = fn
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a resolver. An empty nameserver selects the system resolver;
// otherwise A queries are sent to nameserver (host:port, port 53 if omitted).
func New(nameserver string, timeout time.Duration, opts ...Option) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Resolver{
		nameserver: normalizeNameserver(nameserver),
		timeout:    timeout,
		lookup:     net.DefaultResolver.LookupNetIP,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("resolve")

	return r
}

func normalizeNameserver(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(ns); err == nil {
		return ns
	}
	return net.JoinHostPort(strings.Trim(ns, "[]"), "53")
}

// Nameserver returns the configured DNS server, empty for the system resolver.
func (r *Resolver) Nameserver() string {
	return r.nameserver
}

// Resolve returns the address to scan for target. Literal IPv4 and IPv6
// addresses are returned unchanged; host names resolve to their first IPv4
// address.
func (r *Resolver) Resolve(ctx context.Context, target string) (netip.Addr, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return netip.Addr{}, errors.ErrUnresolvableTarget(target, fmt.Errorf("empty target"))
	}

	if addr, err := netip.ParseAddr(strings.Trim(target, "[]")); err == nil {
		r.record(MethodLiteral, 0, true)
		return addr, nil
	}

	method := MethodSystem
	if r.nameserver != "" {
		method = MethodDNS
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	var (
		addr netip.Addr
		err  error
	)
	if method == MethodDNS {
		addr, err = r.queryA(ctx, target)
	} else {
		addr, err = r.lookupSystem(ctx, target)
	}
	r.record(method, time.Since(start), err == nil)

	if err != nil {
		r.logger.Debug("Target lookup failed", "method", method, "error", err)
		return netip.Addr{}, errors.ErrUnresolvableTarget(target, err)
	}

	r.logger.Debug("Target resolved", "method", method, "address", addr.String())
	return addr, nil
}

func (r *Resolver) lookupSystem(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := r.lookup(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		if addr = addr.Unmap(); addr.Is4() {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no IPv4 address for %s", host)
}

func (r *Resolver) queryA(ctx context.Context, host string) (netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: r.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, r.nameserver)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("query %s: %w", r.nameserver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("query %s: %s", r.nameserver, dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A); ok {
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no A record for %s", host)
}

func (r *Resolver) record(method string, d time.Duration, success bool) {
	if r.recorder != nil {
		r.recorder.RecordLookup(method, d, success)
	}
}
