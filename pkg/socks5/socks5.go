// Package socks5 implements the client side of the SOCKS5 protocol.
package socks5

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
)

// Stream is an established client session with a SOCKS5 proxy. It wraps
// the underlying connection, carries the negotiated authentication
// method, and accepts exactly one request. Once the request succeeds the
// stream is the tunnel itself and can be used as a net.Conn.
type Stream struct {
	conn   net.Conn
	config Config
	id     uuid.UUID
	method byte
	target *TargetAddr
}

// UseConn builds a session on an already connected channel. Unless the
// config skips it, the method selection exchange runs immediately: the
// client always offers NO AUTHENTICATION REQUIRED, plus the given method
// when auth is not nil. The caller keeps ownership of conn and must
// close it when UseConn fails.
func UseConn(conn net.Conn, auth AuthMethod, config Config) (*Stream, error) {
	s := &Stream{
		conn:   conn,
		config: config,
		id:     uuid.New(),
		method: NoAuth,
	}

	if config.SkipAuth {
		// Both ends agreed out of band that no negotiation happens;
		// the request frame is the first thing on the wire.
		s.config.Logger.Debug().
			Stringer("session_id", s.id).
			Msg("method negotiation skipped")
		return s, nil
	}

	methods := []AuthMethod{AnonymousAuth{}}
	if auth != nil {
		methods = append(methods, auth)
	}
	if err := s.negotiate(methods); err != nil {
		return nil, err
	}
	return s, nil
}

// negotiate runs the RFC 1928 method selection exchange:
//
//	+----+----------+----------+      +----+--------+
//	|VER | NMETHODS | METHODS  |  ->  |VER | METHOD |
//	+----+----------+----------+      +----+--------+
//	| 1  |    1     | 1 to 255 |      | 1  |   1    |
//	+----+----------+----------+      +----+--------+
//
// The proxy must pick one of the offered methods; the chosen method's
// sub-negotiation then runs on the same channel.
func (s *Stream) negotiate(methods []AuthMethod) error {
	frame := make([]byte, 0, 2+len(methods))
	frame = append(frame, Version5, byte(len(methods)))
	for _, m := range methods {
		frame = append(frame, m.Code())
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write method selection: %w", err)
	}

	var reply [2]byte
	if _, err := io.ReadFull(s.conn, reply[:]); err != nil {
		return fmt.Errorf("read method selection: %w", err)
	}
	if reply[0] != Version5 {
		return VersionError(reply[0])
	}
	if reply[1] == NoAcceptableMethods {
		return ErrNoAcceptableAuth
	}

	var selected AuthMethod
	for _, m := range methods {
		if m.Code() == reply[1] {
			selected = m
			break
		}
	}
	if selected == nil {
		return ErrUnexpectedAuthMethod
	}
	if err := selected.Exchange(s.conn); err != nil {
		return fmt.Errorf("%s sub-negotiation: %w", MethodName(reply[1]), err)
	}

	s.method = reply[1]
	s.config.Logger.Debug().
		Stringer("session_id", s.id).
		Str("method", MethodName(s.method)).
		Msg("method negotiated")
	return nil
}

// Request sends a SOCKS5 request and reads the proxy's reply:
//
//	+----+-----+-------+------+----------+----------+
//	|VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
//
// A stream carries a single request; further calls return
// ErrRequestAlreadySent. A nil target is only valid for CmdUDPAssociate,
// where it stands for 0.0.0.0:0 and the proxy picks the relay endpoint.
// On success Request returns the bound address from the reply: the
// proxy-side source address for CONNECT, the listening address for BIND,
// or the UDP relay endpoint for UDP ASSOCIATE.
func (s *Stream) Request(cmd Command, target *TargetAddr) (*TargetAddr, error) {
	if s.target != nil {
		return nil, ErrRequestAlreadySent
	}
	if target == nil {
		if cmd != CmdUDPAssociate {
			return nil, ErrMissingTarget
		}
		target = &TargetAddr{IP: net.IPv4zero}
	}

	// The frame is assembled in full before anything is written, in a
	// buffer sized for the largest possible request. Appends stay
	// within that capacity, and only the populated prefix goes out in
	// a single write.
	var buf [MaxRequestSize]byte
	frame := append(buf[:0], Version5, byte(cmd), Reserved)
	frame, err := target.appendTo(frame)
	if err != nil {
		return nil, err
	}
	s.target = target

	if _, err := s.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s request: %w", cmd, err)
	}
	s.config.Logger.Debug().
		Stringer("session_id", s.id).
		Stringer("cmd", cmd).
		Str("target", target.String()).
		Msg("request sent")

	bound, err := s.readReply()
	if err != nil {
		return nil, err
	}
	s.config.Logger.Debug().
		Stringer("session_id", s.id).
		Stringer("cmd", cmd).
		Str("bound", bound.String()).
		Msg("request granted")
	return bound, nil
}

// readReply parses one reply frame:
//
//	+----+-----+-------+------+----------+----------+
//	|VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
//	+----+-----+-------+------+----------+----------+
//	| 1  |  1  | X'00' |  1   | Variable |    2     |
//	+----+-----+-------+------+----------+----------+
//
// A non-zero REP is returned as the matching ReplyError; codes outside
// the RFC 1928 range become UnknownReplyError.
func (s *Stream) readReply() (*TargetAddr, error) {
	var header [4]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, fmt.Errorf("read reply header: %w", err)
	}
	if header[0] != Version5 {
		return nil, VersionError(header[0])
	}
	reply, err := ReplyFromCode(header[1])
	if err != nil {
		return nil, err
	}
	if reply != Succeeded {
		return nil, reply
	}

	bound, err := readAddr(s.conn, header[3])
	if err != nil {
		return nil, fmt.Errorf("read bound address: %w", err)
	}
	return bound, nil
}

// ReadBindReply waits for the second reply of a BIND request, sent by
// the proxy when the awaited inbound connection arrives. The returned
// address is the peer that connected. After this the stream relays to
// that peer.
func (s *Stream) ReadBindReply() (*TargetAddr, error) {
	peer, err := s.readReply()
	if err != nil {
		return nil, err
	}
	s.config.Logger.Debug().
		Stringer("session_id", s.id).
		Str("peer", peer.String()).
		Msg("bind peer connected")
	return peer, nil
}

// ID returns the session identifier used in log output.
func (s *Stream) ID() uuid.UUID { return s.id }

// Method returns the negotiated authentication method number. Before
// negotiation, and when it was skipped, this is NoAuth.
func (s *Stream) Method() byte { return s.method }

// Target returns the address the request was issued for, or nil before
// any request.
func (s *Stream) Target() *TargetAddr { return s.target }

// Read reads tunneled data from the proxy.
func (s *Stream) Read(p []byte) (int, error) { return s.conn.Read(p) }

// Write sends tunneled data through the proxy.
func (s *Stream) Write(p []byte) (int, error) { return s.conn.Write(p) }

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }

// CloseWrite half-closes the underlying connection when it supports it,
// signaling EOF to the target while responses keep draining.
func (s *Stream) CloseWrite() error {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// LocalAddr returns the local address of the underlying connection.
func (s *Stream) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the proxy's address, not the target's.
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// SetDeadline sets the read and write deadlines of the underlying
// connection.
func (s *Stream) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline of the underlying connection.
func (s *Stream) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline of the underlying connection.
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }
