package socks5

import (
	"fmt"
	"io"
)

// AuthMethod is the client side of one RFC 1928 authentication method.
// Code is the method number offered during negotiation. Exchange runs the
// method sub-negotiation once the proxy selects it.
type AuthMethod interface {
	Code() byte
	Exchange(rw io.ReadWriter) error
}

// AnonymousAuth is the NO AUTHENTICATION REQUIRED method. It has no
// sub-negotiation and is always offered.
type AnonymousAuth struct{}

// Code returns the method number.
func (AnonymousAuth) Code() byte { return NoAuth }

// Exchange is a no-op.
func (AnonymousAuth) Exchange(io.ReadWriter) error { return nil }

// UserPassAuth is the USERNAME/PASSWORD method. Offering it lets the
// client recognize proxies that require credentials, but the RFC 1929
// exchange itself is not implemented and selecting it fails the session.
type UserPassAuth struct {
	Username string
	Password string
}

// Code returns the method number.
func (UserPassAuth) Code() byte { return UsernamePassword }

// Exchange reports that credential negotiation is unavailable.
func (UserPassAuth) Exchange(io.ReadWriter) error { return ErrUserPassNotSupported }

// MethodName returns a printable name for an authentication method number.
func MethodName(method byte) string {
	switch method {
	case NoAuth:
		return "none"
	case GSSAPI:
		return "gssapi"
	case UsernamePassword:
		return "username/password"
	case NoAcceptableMethods:
		return "no acceptable methods"
	default:
		return fmt.Sprintf("0x%02X", method)
	}
}
