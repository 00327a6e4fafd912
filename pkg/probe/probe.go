// Package probe checks a SOCKS5 proxy by driving one full client
// exchange against it and timing every step: TCP dial, method
// negotiation, CONNECT request. The result says how far the exchange
// got, not just whether it failed.
package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"socksdial/pkg/socks5"
	"socksdial/pkg/transport"
)

// Defaults applied when Config leaves the matching field unset.
const (
	DefaultTarget  = "example.com:80"
	DefaultTimeout = 5 * time.Second
)

// Config describes one probe run.
type Config struct {
	Proxy    string            // proxy endpoint, host:port
	Target   string            // CONNECT destination, host:port; DefaultTarget when empty
	Timeout  time.Duration     // bounds the whole run; DefaultTimeout when zero
	SkipAuth bool              // probe a proxy that expects no negotiation
	Auth     socks5.AuthMethod // extra method to offer, may be nil
	Logger   zerolog.Logger
}

// Summary reports how far the exchange got and how long each step took.
// A step's duration is only meaningful when the preceding stage flag is
// set.
type Summary struct {
	Proxy     string
	Target    string
	CheckedAt time.Time

	Reachable  bool   // TCP dial to the proxy succeeded
	Negotiated bool   // method selection completed
	ConnectOK  bool   // CONNECT was granted
	Method     string // negotiated method name
	BoundAddr  string // bound address from the reply

	DialTime      time.Duration
	NegotiateTime time.Duration
	RequestTime   time.Duration
}

// Run probes the proxy once. The returned summary is populated as far as
// the exchange got even when an error is returned.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	target := cfg.Target
	if target == "" {
		target = DefaultTarget
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	summary := Summary{
		Proxy:     cfg.Proxy,
		Target:    target,
		CheckedAt: time.Now(),
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return summary, fmt.Errorf("target %q: %w", target, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return summary, fmt.Errorf("target %q: invalid port %q", target, portStr)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline := time.Now().Add(timeout)

	config := socks5.Config{
		ConnectTimeout: timeout,
		SkipAuth:       cfg.SkipAuth,
		Logger:         cfg.Logger,
	}

	start := time.Now()
	conn, err := transport.Dial(ctx, cfg.Proxy, timeout)
	summary.DialTime = time.Since(start)
	if err != nil {
		return summary, fmt.Errorf("dial %s: %w", cfg.Proxy, err)
	}
	defer conn.Close()
	summary.Reachable = true

	// One deadline covers the rest of the probe so a stalled proxy
	// cannot hold it past the configured timeout.
	conn.SetDeadline(deadline)

	start = time.Now()
	stream, err := socks5.UseConn(conn, cfg.Auth, config)
	summary.NegotiateTime = time.Since(start)
	if err != nil {
		return summary, fmt.Errorf("negotiate: %w", err)
	}
	summary.Negotiated = true
	summary.Method = socks5.MethodName(stream.Method())

	start = time.Now()
	bound, err := stream.Request(socks5.CmdConnect, socks5.NewTargetAddr(host, uint16(port)))
	summary.RequestTime = time.Since(start)
	if err != nil {
		return summary, fmt.Errorf("connect %s: %w", target, err)
	}
	summary.ConnectOK = true
	summary.BoundAddr = bound.String()

	return summary, nil
}
