// Package forward runs local TCP listeners whose accepted connections
// are each carried to a fixed target through a SOCKS5 proxy. One
// Forwarder owns one listener; every accepted connection gets its own
// proxy session.
package forward

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"socksdial/pkg/socks5"
	"socksdial/pkg/transport"
)

// Forwarder accepts local connections and tunnels them through a proxy.
type Forwarder struct {
	ID         uuid.UUID
	Proxy      string // proxy endpoint, host:port
	TargetHost string
	TargetPort uint16
	CreatedAt  time.Time

	auth     socks5.AuthMethod
	config   socks5.Config
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	active atomic.Int64
	served atomic.Uint64
}

// New builds a forwarder for the given proxy and target. Stop releases
// everything Start acquired; canceling ctx has the same effect.
func New(ctx context.Context, proxy, targetHost string, targetPort uint16, auth socks5.AuthMethod, config socks5.Config) *Forwarder {
	if ctx == nil {
		ctx = context.Background()
	}
	fctx, cancel := context.WithCancel(ctx)
	return &Forwarder{
		ID:         uuid.New(),
		Proxy:      proxy,
		TargetHost: targetHost,
		TargetPort: targetPort,
		CreatedAt:  time.Now(),
		auth:       auth,
		config:     config,
		ctx:        fctx,
		cancel:     cancel,
	}
}

// Start binds the local listener and begins accepting in the
// background. The address may use port 0 to let the system pick one.
func (f *Forwarder) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	f.listener = ln

	// Closing the listener is what actually stops the accept loop,
	// whether Stop was called or an ancestor context was canceled.
	context.AfterFunc(f.ctx, func() { ln.Close() })

	f.config.Logger.Info().
		Stringer("forward_id", f.ID).
		Str("listen", ln.Addr().String()).
		Str("proxy", f.Proxy).
		Str("target", f.Target().String()).
		Msg("forwarder started")

	go f.acceptLoop()
	return nil
}

// Stop closes the listener and tears down every active tunnel.
func (f *Forwarder) Stop() {
	f.cancel()
}

// Addr returns the bound listener address, or nil before Start.
func (f *Forwarder) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Target returns the fixed destination as a SOCKS5 target address.
func (f *Forwarder) Target() *socks5.TargetAddr {
	return socks5.NewTargetAddr(f.TargetHost, f.TargetPort)
}

// Active returns the number of tunnels currently relaying.
func (f *Forwarder) Active() int64 { return f.active.Load() }

// Served returns the number of tunnels established since Start.
func (f *Forwarder) Served() uint64 { return f.served.Load() }

// acceptLoop hands each accepted connection to its own goroutine. It
// exits when the listener closes.
func (f *Forwarder) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if f.ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			f.config.Logger.Error().
				Stringer("forward_id", f.ID).
				Err(err).
				Msg("accept failed")
			return
		}
		go f.handleConnection(conn)
	}
}

// handleConnection opens a fresh proxy session for one local connection
// and relays until either side finishes.
func (f *Forwarder) handleConnection(local net.Conn) {
	defer local.Close()

	conn, err := transport.Dial(f.ctx, f.Proxy, f.config.ConnectTimeout)
	if err != nil {
		f.config.Logger.Warn().
			Stringer("forward_id", f.ID).
			Str("proxy", f.Proxy).
			Err(err).
			Msg("proxy dial failed")
		return
	}
	stream, err := socks5.UseConn(conn, f.auth, f.config)
	if err != nil {
		conn.Close()
		f.config.Logger.Warn().
			Stringer("forward_id", f.ID).
			Err(err).
			Msg("session setup failed")
		return
	}
	if _, err := stream.Request(socks5.CmdConnect, f.Target()); err != nil {
		conn.Close()
		f.config.Logger.Warn().
			Stringer("forward_id", f.ID).
			Str("target", f.Target().String()).
			Err(err).
			Msg("connect request failed")
		return
	}
	defer stream.Close()

	f.served.Add(1)
	f.active.Add(1)
	defer f.active.Add(-1)

	if err := Relay(f.ctx, local, stream); err != nil && f.ctx.Err() == nil {
		f.config.Logger.Debug().
			Stringer("forward_id", f.ID).
			Stringer("session_id", stream.ID()).
			Err(err).
			Msg("relay ended with error")
	}
}
