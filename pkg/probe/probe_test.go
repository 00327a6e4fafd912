package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"socksdial/pkg/socks5"
)

// fakeProxy runs handler on every accepted connection until the test
// ends.
func fakeProxy(t *testing.T, handler func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				handler(c)
			}(conn)
		}
	}()
	return ln.Addr().String()
}

// grantConnect negotiates no-auth and grants whatever request arrives
// with a fixed bound address. Nothing is dialed, so probes stay on
// loopback regardless of the target they name.
func grantConnect(c net.Conn) {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return
	}
	if _, err := txsocks5.NewRequestFrom(c); err != nil {
		return
	}
	_, _ = txsocks5.NewReply(txsocks5.RepSuccess, txsocks5.ATYPIPv4, []byte{10, 0, 0, 1}, []byte{0x04, 0x38}).WriteTo(c)
}

// denyConnect negotiates no-auth, then refuses the request.
func denyConnect(c net.Conn) {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return
	}
	if _, err := txsocks5.NewRequestFrom(c); err != nil {
		return
	}
	_, _ = txsocks5.NewReply(txsocks5.RepHostUnreachable, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(c)
}

func TestProbeSuccess(t *testing.T) {
	proxy := fakeProxy(t, grantConnect)

	summary, err := Run(context.Background(), Config{
		Proxy:   proxy,
		Target:  "perdu.com:80",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !summary.Reachable || !summary.Negotiated || !summary.ConnectOK {
		t.Errorf("stage flags = %v/%v/%v, want all true",
			summary.Reachable, summary.Negotiated, summary.ConnectOK)
	}
	if summary.Method != "none" {
		t.Errorf("Method = %q, want %q", summary.Method, "none")
	}
	if summary.BoundAddr != "10.0.0.1:1080" {
		t.Errorf("BoundAddr = %q, want %q", summary.BoundAddr, "10.0.0.1:1080")
	}
	if summary.Proxy != proxy || summary.Target != "perdu.com:80" {
		t.Errorf("summary labels = %q/%q", summary.Proxy, summary.Target)
	}
	if summary.CheckedAt.IsZero() {
		t.Error("CheckedAt not set")
	}
	if summary.DialTime < 0 || summary.NegotiateTime < 0 || summary.RequestTime < 0 {
		t.Error("negative step duration")
	}
}

func TestProbeDefaultTarget(t *testing.T) {
	proxy := fakeProxy(t, grantConnect)

	summary, err := Run(context.Background(), Config{Proxy: proxy, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Target != DefaultTarget {
		t.Errorf("Target = %q, want %q", summary.Target, DefaultTarget)
	}
	if !summary.ConnectOK {
		t.Error("CONNECT not granted")
	}
}

func TestProbeUnreachableProxy(t *testing.T) {
	// Bind and release a port so nothing listens on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	proxy := ln.Addr().String()
	ln.Close()

	summary, err := Run(context.Background(), Config{Proxy: proxy, Timeout: 2 * time.Second})
	if !errors.Is(err, socks5.ConnectionRefused) {
		t.Fatalf("Run error = %v, want ConnectionRefused", err)
	}
	if summary.Reachable || summary.Negotiated || summary.ConnectOK {
		t.Errorf("stage flags = %v/%v/%v, want all false",
			summary.Reachable, summary.Negotiated, summary.ConnectOK)
	}
}

func TestProbeConnectDenied(t *testing.T) {
	proxy := fakeProxy(t, denyConnect)

	summary, err := Run(context.Background(), Config{
		Proxy:   proxy,
		Target:  "203.0.113.7:443",
		Timeout: 2 * time.Second,
	})
	if !errors.Is(err, socks5.HostUnreachable) {
		t.Fatalf("Run error = %v, want HostUnreachable", err)
	}
	if !summary.Reachable || !summary.Negotiated {
		t.Error("stages before the request should have succeeded")
	}
	if summary.ConnectOK {
		t.Error("ConnectOK set on a denied request")
	}
	if summary.Method != "none" {
		t.Errorf("Method = %q, want %q", summary.Method, "none")
	}
}

func TestProbeStalledProxy(t *testing.T) {
	proxy := fakeProxy(t, func(c net.Conn) {
		// Swallow the greeting and never answer.
		_, _ = io.Copy(io.Discard, c)
	})

	start := time.Now()
	summary, err := Run(context.Background(), Config{Proxy: proxy, Timeout: 300 * time.Millisecond})
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Run error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe took %v despite a 300ms budget", elapsed)
	}
	if !summary.Reachable {
		t.Error("proxy was reachable")
	}
	if summary.Negotiated {
		t.Error("Negotiated set though the proxy never answered")
	}
}

func TestProbeBadTarget(t *testing.T) {
	summary, err := Run(context.Background(), Config{Proxy: "127.0.0.1:1", Target: "no-port"})
	if err == nil {
		t.Fatal("malformed target did not fail")
	}
	if summary.Reachable {
		t.Error("Reachable set though nothing was dialed")
	}
}
