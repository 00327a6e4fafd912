// Package socks5 implements the client side of the SOCKS5 protocol.
package socks5

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
)

// TargetAddr describes a connection target: either an IP address or a
// domain name left for the proxy to resolve, plus a port.
type TargetAddr struct {
	FQDN string
	IP   net.IP
	Port uint16
}

// NewTargetAddr builds a target from a host and port. A host that parses
// as an IP literal becomes an IP target; anything else is carried as a
// domain name and resolved by the proxy.
func NewTargetAddr(host string, port uint16) *TargetAddr {
	if ip := net.ParseIP(host); ip != nil {
		return &TargetAddr{IP: ip, Port: port}
	}
	return &TargetAddr{FQDN: host, Port: port}
}

// String returns the target in host:port form.
func (a *TargetAddr) String() string {
	host := a.FQDN
	if a.IP != nil {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// appendTo appends the target in SOCKS5 address format:
//
//	+------+----------+----------+
//	| ATYP | DST.ADDR | DST.PORT |
//	+------+----------+----------+
//	|  1   | Variable |    2     |
//
// Domain names longer than 255 bytes and IPv6 addresses are rejected
// before anything is appended.
func (a *TargetAddr) appendTo(buf []byte) ([]byte, error) {
	switch {
	case a.IP != nil:
		ip4 := a.IP.To4()
		if ip4 == nil {
			return buf, ErrIPv6NotSupported
		}
		buf = append(buf, IPv4)
		buf = append(buf, ip4...)

	default:
		if len(a.FQDN) > MaxDomainLen {
			return buf, DomainLengthError(len(a.FQDN))
		}
		buf = append(buf, Domain, byte(len(a.FQDN)))
		buf = append(buf, a.FQDN...)
	}

	return binary.BigEndian.AppendUint16(buf, a.Port), nil
}

// readAddr parses the DST.ADDR and DST.PORT fields of a reply for the
// given address type.
func readAddr(r io.Reader, addrType byte) (*TargetAddr, error) {
	switch addrType {
	case IPv4:
		var buf [4 + 2]byte // 4 bytes IPv4 + 2 bytes port
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		return &TargetAddr{
			IP:   net.IPv4(buf[0], buf[1], buf[2], buf[3]),
			Port: binary.BigEndian.Uint16(buf[4:]),
		}, nil

	case Domain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return nil, err
		}
		buf := make([]byte, int(length[0])+2) // +2 for port
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return &TargetAddr{
			FQDN: string(buf[:length[0]]),
			Port: binary.BigEndian.Uint16(buf[length[0]:]),
		}, nil

	case IPv6:
		return nil, ErrIPv6NotSupported

	default:
		return nil, AddressTypeNotSupported
	}
}
