// sockscat pipes stdin and stdout through a SOCKS5 proxy, in the spirit
// of netcat. By default it issues a CONNECT for the given target; with
// --bind it asks the proxy to listen and waits for the peer to connect
// in.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"socksdial/pkg/forward"
	"socksdial/pkg/socks5"
	"socksdial/pkg/transport"
)

// Exit codes returned to the shell.
const (
	Success        = 0
	ErrBadUsage    = 2
	ErrTunnel      = 3
	ErrRelay       = 4
	ErrInterrupted = 5
)

var (
	proxyAddr = pflag.StringP("proxy", "x", "127.0.0.1:1080", "SOCKS5 proxy to go through, host:port")
	timeout   = pflag.DurationP("timeout", "t", 10*time.Second, "proxy dial timeout")
	skipAuth  = pflag.Bool("skip-auth", false, "send no method selection, the proxy must expect this")
	useBind   = pflag.Bool("bind", false, "issue BIND instead of CONNECT and wait for an inbound peer")
	verbose   = pflag.BoolP("verbose", "v", false, "enable debug logging")
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}

func main() {
	os.Exit(run())
}

func run() int {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <host> <port>\n\nFlags:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	args := pflag.Args()
	if len(args) != 2 {
		pflag.Usage()
		return ErrBadUsage
	}
	host := args[0]
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		log.Error().Str("port", args[1]).Msg("Invalid port")
		return ErrBadUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down")
		cancel()
	}()

	config := socks5.Config{
		ConnectTimeout: *timeout,
		SkipAuth:       *skipAuth,
		Logger:         log.Logger,
	}

	stream, err := openTunnel(ctx, host, uint16(port), config)
	if err != nil {
		log.Error().Err(err).Msg("Tunnel setup failed")
		return ErrTunnel
	}
	defer stream.Close()

	if err := forward.Relay(ctx, stdio{}, stream); err != nil {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		log.Error().Err(err).Msg("Relay failed")
		return ErrRelay
	}
	return Success
}

// openTunnel establishes the proxy session. CONNECT returns as soon as
// the proxy grants the request; BIND additionally waits for the second
// reply announcing the inbound peer.
func openTunnel(ctx context.Context, host string, port uint16, config socks5.Config) (*socks5.Stream, error) {
	if !*useBind {
		return transport.Connect(ctx, *proxyAddr, host, port, config)
	}

	conn, err := transport.Dial(ctx, *proxyAddr, config.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial proxy %s: %w", *proxyAddr, err)
	}
	stream, err := socks5.UseConn(conn, nil, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	bound, err := stream.Request(socks5.CmdBind, socks5.NewTargetAddr(host, port))
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("bound", bound.String()).Msg("Proxy listening, waiting for peer")

	peer, err := stream.ReadBindReply()
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("peer", peer.String()).Msg("Peer connected")
	return stream, nil
}

// stdio presents the process's standard streams as one connection so
// they can sit on the local end of a relay.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdio) Close() error {
	os.Stdin.Close()
	return os.Stdout.Close()
}

var _ io.ReadWriteCloser = stdio{}
