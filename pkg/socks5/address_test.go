package socks5

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewTargetAddr(t *testing.T) {
	tests := []struct {
		host    string
		port    uint16
		wantIP  bool
		wantStr string
	}{
		{"93.184.216.34", 443, true, "93.184.216.34:443"},
		{"perdu.com", 80, false, "perdu.com:80"},
		{"2001:db8::1", 8080, true, "[2001:db8::1]:8080"},
		{"localhost", 1080, false, "localhost:1080"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			a := NewTargetAddr(tt.host, tt.port)
			if gotIP := a.IP != nil; gotIP != tt.wantIP {
				t.Errorf("IP parsed = %v, want %v", gotIP, tt.wantIP)
			}
			if a.IP != nil && a.FQDN != "" {
				t.Error("target carries both an IP and a domain")
			}
			if got := a.String(); got != tt.wantStr {
				t.Errorf("String() = %q, want %q", got, tt.wantStr)
			}
		})
	}
}

func TestAddrDomainRoundTrip(t *testing.T) {
	for _, name := range []string{
		"a",
		"perdu.com",
		strings.Repeat("x", MaxDomainLen),
	} {
		t.Run(name[:min(len(name), 16)], func(t *testing.T) {
			in := &TargetAddr{FQDN: name, Port: 1080}
			encoded, err := in.appendTo(nil)
			if err != nil {
				t.Fatal(err)
			}

			r := bytes.NewReader(encoded[1:]) // skip ATYP, readAddr takes it separately
			out, err := readAddr(r, encoded[0])
			if err != nil {
				t.Fatal(err)
			}
			if out.FQDN != name || out.Port != 1080 {
				t.Errorf("round trip gave %s, want %s", out, in)
			}
		})
	}
}

func TestAddrIPv4RoundTrip(t *testing.T) {
	in := NewTargetAddr("10.20.30.40", 65535)
	encoded, err := in.appendTo(nil)
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != IPv4 {
		t.Fatalf("ATYP = 0x%02X, want 0x%02X", encoded[0], IPv4)
	}

	out, err := readAddr(bytes.NewReader(encoded[1:]), encoded[0])
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "10.20.30.40:65535" {
		t.Errorf("round trip gave %s, want 10.20.30.40:65535", out)
	}
}

func TestAppendToRejectsOversizedDomain(t *testing.T) {
	in := &TargetAddr{FQDN: strings.Repeat("x", MaxDomainLen+1), Port: 80}
	buf, err := in.appendTo(nil)
	var lenErr DomainLengthError
	if !errors.As(err, &lenErr) {
		t.Fatalf("appendTo error = %v, want DomainLengthError", err)
	}
	if len(buf) != 0 {
		t.Errorf("appendTo appended %d bytes on failure", len(buf))
	}
}

func TestAppendToRejectsIPv6(t *testing.T) {
	in := NewTargetAddr("2001:db8::1", 443)
	buf, err := in.appendTo(nil)
	if !errors.Is(err, ErrIPv6NotSupported) {
		t.Fatalf("appendTo error = %v, want ErrIPv6NotSupported", err)
	}
	if len(buf) != 0 {
		t.Errorf("appendTo appended %d bytes on failure", len(buf))
	}
}

func TestReadAddrShortInput(t *testing.T) {
	// IPv4 address cut off after two bytes.
	if _, err := readAddr(bytes.NewReader([]byte{127, 0}), IPv4); err == nil {
		t.Error("truncated IPv4 address did not fail")
	}

	// Domain whose declared length exceeds the available bytes.
	if _, err := readAddr(bytes.NewReader([]byte{10, 'p', 'e'}), Domain); err == nil {
		t.Error("truncated domain did not fail")
	}
}

func TestReadAddrRejectsIPv6(t *testing.T) {
	_, err := readAddr(bytes.NewReader(make([]byte, 18)), IPv6)
	if !errors.Is(err, ErrIPv6NotSupported) {
		t.Fatalf("readAddr error = %v, want ErrIPv6NotSupported", err)
	}
}

func TestReadAddrUnknownType(t *testing.T) {
	_, err := readAddr(bytes.NewReader(nil), 0x05)
	if !errors.Is(err, AddressTypeNotSupported) {
		t.Fatalf("readAddr error = %v, want AddressTypeNotSupported", err)
	}
}
