// Package socks5 implements the client side of the SOCKS5 protocol.
package socks5

import "fmt"

// Protocol version byte.
const (
	Version5 byte = 0x05 // SOCKS Protocol Version 5
)

// Reserved is the value of the RSV field in request and reply frames.
const Reserved byte = 0x00

// Authentication methods from RFC 1928.
const (
	NoAuth              byte = 0x00 // No authentication required
	GSSAPI              byte = 0x01 // GSSAPI
	UsernamePassword    byte = 0x02 // Username/Password (RFC 1929)
	NoAcceptableMethods byte = 0xFF // No acceptable methods
)

// Command is a SOCKS5 request command.
type Command byte

// Commands a client may request.
const (
	CmdConnect      Command = 0x01 // Establish TCP/IP stream connection
	CmdBind         Command = 0x02 // Listen for incoming TCP connection
	CmdUDPAssociate Command = 0x03 // Set up UDP relay
)

// String returns the RFC 1928 name of the command.
func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdBind:
		return "BIND"
	case CmdUDPAssociate:
		return "UDP ASSOCIATE"
	default:
		return fmt.Sprintf("COMMAND(0x%02X)", byte(c))
	}
}

// Address types carried in the ATYP field.
const (
	IPv4   byte = 0x01 // IPv4 address (4 bytes)
	Domain byte = 0x03 // Domain name (variable length)
	IPv6   byte = 0x04 // IPv6 address (16 bytes)
)

// Frame size bounds.
const (
	MaxDomainLen   = 255 // Maximum domain name length in bytes
	MaxRequestSize = 262 // Maximum size of a request frame in bytes
)
