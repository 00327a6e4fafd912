// Package transport opens the TCP channel to a SOCKS5 proxy. Dial
// failures with a clear protocol counterpart are folded into the reply
// error space of package socks5, so callers branch on a single set of
// errors whether a failure was detected locally or reported by the
// proxy.
package transport

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"socksdial/pkg/socks5"
)

// Dial connects to a proxy endpoint in host:port form. A timeout > 0
// bounds only this dial; protocol exchanges on the returned connection
// are up to the caller.
func Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, ReplyFromDialError(err)
	}
	return conn, nil
}

// ReplyFromDialError maps a dial failure to its socks5.ReplyError
// equivalent:
//
//	timeout            -> ConnectionTimeout
//	ECONNREFUSED       -> ConnectionRefused
//	ECONNABORTED       -> ConnectionNotAllowed
//	ECONNRESET         -> ConnectionNotAllowed
//	ENOTCONN           -> NetworkUnreachable
//
// Anything else is returned unchanged.
func ReplyFromDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return socks5.ConnectionTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return socks5.ConnectionRefused
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.ECONNRESET):
		return socks5.ConnectionNotAllowed
	case errors.Is(err, syscall.ENOTCONN):
		return socks5.NetworkUnreachable
	}
	return err
}
