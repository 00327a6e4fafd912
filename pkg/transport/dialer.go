package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"socksdial/pkg/socks5"
)

// Connect dials the proxy, negotiates a session with no extra
// authentication method, and issues a CONNECT for the target, all in one
// call. On success the returned stream is the established tunnel.
func Connect(ctx context.Context, proxyAddr, targetHost string, targetPort uint16, config socks5.Config) (*socks5.Stream, error) {
	return connect(ctx, proxyAddr, nil, socks5.NewTargetAddr(targetHost, targetPort), config)
}

// Dialer adapts the client to the DialContext signature used by
// http.Transport and similar consumers. Every call opens a fresh session
// through Proxy and tunnels the given address.
type Dialer struct {
	Proxy  string            // proxy endpoint, host:port
	Auth   socks5.AuthMethod // extra method to offer, may be nil
	Config socks5.Config
}

// DialContext tunnels a TCP connection to address through the proxy.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4":
	default:
		return nil, fmt.Errorf("socks5 dial %s: network %s not supported", address, network)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("socks5 dial: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socks5 dial %s: invalid port %q", address, portStr)
	}

	return connect(ctx, d.Proxy, d.Auth, socks5.NewTargetAddr(host, uint16(port)), d.Config)
}

// connect runs the full client sequence: dial, method negotiation,
// CONNECT request. The proxy connection is closed on any failure past
// the dial.
func connect(ctx context.Context, proxy string, auth socks5.AuthMethod, target *socks5.TargetAddr, config socks5.Config) (*socks5.Stream, error) {
	conn, err := Dial(ctx, proxy, config.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial proxy %s: %w", proxy, err)
	}
	config.Logger.Debug().Str("proxy", proxy).Msg("proxy dialed")

	stream, err := socks5.UseConn(conn, auth, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := stream.Request(socks5.CmdConnect, target); err != nil {
		conn.Close()
		return nil, err
	}
	return stream, nil
}
