// Package socks5 implements the client side of the SOCKS5 protocol.
package socks5

import (
	"errors"
	"fmt"
)

// ReplyError is a request failure, either reported by the proxy through a
// reply code or detected locally while reaching it.
type ReplyError byte

// Reply codes sent from the proxy, as defined in RFC 1928.
const (
	Succeeded               ReplyError = 0x00 // Request granted
	GeneralFailure          ReplyError = 0x01 // General failure
	ConnectionNotAllowed    ReplyError = 0x02 // Connection not allowed by ruleset
	NetworkUnreachable      ReplyError = 0x03 // Network unreachable
	HostUnreachable         ReplyError = 0x04 // Host unreachable
	ConnectionRefused       ReplyError = 0x05 // Connection refused by destination
	TTLExpired              ReplyError = 0x06 // TTL expired
	CommandNotSupported     ReplyError = 0x07 // Command not supported
	AddressTypeNotSupported ReplyError = 0x08 // Address type not supported

	// ConnectionTimeout is raised locally when dialing the proxy times
	// out. It has no code of its own on the wire; proxies report
	// timeouts as TTL expired.
	ConnectionTimeout ReplyError = 0xF0
)

// replyText maps reply codes to human-readable messages.
var replyText = map[ReplyError]string{
	Succeeded:               "succeeded",
	GeneralFailure:          "general SOCKS server failure",
	ConnectionNotAllowed:    "connection not allowed by ruleset",
	NetworkUnreachable:      "network unreachable",
	HostUnreachable:         "host unreachable",
	ConnectionRefused:       "connection refused by destination host",
	TTLExpired:              "TTL expired",
	CommandNotSupported:     "command not supported",
	AddressTypeNotSupported: "address type not supported",
	ConnectionTimeout:       "connection timeout",
}

// Error returns the message for the reply code.
func (e ReplyError) Error() string {
	if msg, ok := replyText[e]; ok {
		return msg
	}
	return fmt.Sprintf("reply error 0x%02X", byte(e))
}

// Code returns the wire code for the reply. ConnectionTimeout maps to the
// TTL expired code, the closest RFC 1928 equivalent.
func (e ReplyError) Code() byte {
	if e == ConnectionTimeout {
		return byte(TTLExpired)
	}
	return byte(e)
}

// ReplyFromCode converts a wire reply code to a ReplyError. Codes outside
// the RFC 1928 range are rejected with an UnknownReplyError.
func ReplyFromCode(code byte) (ReplyError, error) {
	if code > byte(AddressTypeNotSupported) {
		return GeneralFailure, UnknownReplyError(code)
	}
	return ReplyError(code), nil
}

// VersionError reports a frame whose version byte is not SOCKS5.
type VersionError byte

func (e VersionError) Error() string {
	return fmt.Sprintf("unsupported SOCKS version 0x%02X", byte(e))
}

// UnknownReplyError reports a reply code outside the RFC 1928 range.
type UnknownReplyError byte

func (e UnknownReplyError) Error() string {
	return fmt.Sprintf("unknown reply code 0x%02X", byte(e))
}

// DomainLengthError reports a domain name that does not fit the single
// length byte of the wire format.
type DomainLengthError int

func (e DomainLengthError) Error() string {
	return fmt.Sprintf("domain name exceeds %d bytes: %d", MaxDomainLen, int(e))
}

// Errors reported during session setup and requests.
var (
	ErrNoAcceptableAuth     = errors.New("no acceptable authentication method")
	ErrUnexpectedAuthMethod = errors.New("proxy selected a method that was not offered")
	ErrUserPassNotSupported = errors.New("username/password negotiation is not supported")
	ErrMissingTarget        = errors.New("no target address for command")
	ErrIPv6NotSupported     = errors.New("IPv6 addresses are not supported")
	ErrRequestAlreadySent   = errors.New("request already sent on this session")
)
