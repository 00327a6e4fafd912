// Package main implements the socksdial operator console.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"socksdial/pkg/forward"
	"socksdial/pkg/probe"
	"socksdial/pkg/socks5"
	"socksdial/pkg/transport"
)

// Banner shown when the console starts.
const banner = `
                _        _ _       _
 ___ ___   ___| | _____| (_) __ _| |
/ __/ _ \ / __| |/ / __| | |/ _' | |
\__ \ (_) | (__|   <\__ \ |_| (_| | |
|___/\___/ \___|_|\_\___/_(_)\__,_|_|

   SOCKS5 Tunnel Console (v1.0)
   ----------------------------

`

// Default timeouts for console operations.
const (
	SelectTimeout  = 3 * time.Second  // reachability check on 'use'
	RequestTimeout = 10 * time.Second // session setup in 'check' and 'forward'
)

// State shared by the command handlers.
var (
	selectedProxy string   // current proxy endpoint
	forwarders    sync.Map // active forwarders by ID
)

// sessionConfig builds the per-command client settings from the
// command's flags and the console logger.
func sessionConfig(c *grumble.Context) socks5.Config {
	return socks5.Config{
		ConnectTimeout: c.Flags.Duration("timeout"),
		SkipAuth:       c.Flags.Bool("skip-auth"),
		Logger:         log.Logger,
	}
}

// commandFromName resolves the command names accepted on the CLI.
func commandFromName(name string) (socks5.Command, error) {
	switch strings.ToLower(name) {
	case "connect":
		return socks5.CmdConnect, nil
	case "bind":
		return socks5.CmdBind, nil
	case "udp", "udp-associate":
		return socks5.CmdUDPAssociate, nil
	default:
		return 0, fmt.Errorf("unknown command %q (want connect, bind or udp)", name)
	}
}

// activeForwarders returns the registered forwarders sorted by creation
// time.
func activeForwarders() []*forward.Forwarder {
	var active []*forward.Forwarder
	forwarders.Range(func(_, value any) bool {
		if f, ok := value.(*forward.Forwarder); ok {
			active = append(active, f)
		}
		return true
	})
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

// RenderForwardTable formats the active forwarders into a human-readable
// table.
func RenderForwardTable(active []*forward.Forwarder) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{
		"ID",
		"Listen",
		"Proxy",
		"Target",
		"Active",
		"Served",
		"Created",
	})

	for _, f := range active {
		listen := "-"
		if addr := f.Addr(); addr != nil {
			listen = addr.String()
		}
		t.AppendRow(table.Row{
			f.ID,
			listen,
			f.Proxy,
			f.Target(),
			f.Active(),
			f.Served(),
			f.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return t.Render()
}

// RenderProbeTable formats a probe summary into one row per protocol
// step. Steps that never ran because an earlier one failed show as
// skipped.
func RenderProbeTable(s probe.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Step", "Outcome", "Latency", "Detail"})

	t.AppendRow(table.Row{
		"dial",
		stepOutcome(true, s.Reachable),
		stepLatency(true, s.DialTime),
		s.Proxy,
	})
	t.AppendRow(table.Row{
		"negotiate",
		stepOutcome(s.Reachable, s.Negotiated),
		stepLatency(s.Reachable, s.NegotiateTime),
		stepDetail(s.Negotiated, "method "+s.Method),
	})
	t.AppendRow(table.Row{
		"connect",
		stepOutcome(s.Negotiated, s.ConnectOK),
		stepLatency(s.Negotiated, s.RequestTime),
		stepDetail(s.ConnectOK, s.Target+" bound "+s.BoundAddr),
	})

	return t.Render()
}

func stepOutcome(ran, ok bool) string {
	switch {
	case !ran:
		return "-"
	case ok:
		return "ok"
	default:
		return "failed"
	}
}

func stepLatency(ran bool, d time.Duration) string {
	if !ran {
		return "-"
	}
	return d.Round(time.Microsecond).String()
}

func stepDetail(ok bool, detail string) string {
	if !ok {
		return "-"
	}
	return detail
}

// AddCommands registers all CLI commands with the application. This
// includes proxy selection, diagnostics, and forwarder control.
func AddCommands(app *grumble.App) {
	// Command to select the proxy used by subsequent commands
	app.AddCommand(&grumble.Command{
		Name:    "use",
		Aliases: []string{"select"},
		Help:    "select the SOCKS5 proxy for subsequent commands",
		Args: func(a *grumble.Args) {
			a.String("proxy-address", "proxy endpoint, host:port")
		},
		Run: func(c *grumble.Context) error {
			address := c.Args.String("proxy-address")
			if _, _, err := net.SplitHostPort(address); err != nil {
				log.Error().Err(err).Msg("Invalid proxy address")
				return nil
			}

			// Reachability check only; the protocol exchange happens
			// per command.
			ctx, cancel := context.WithTimeout(context.Background(), SelectTimeout)
			defer cancel()
			conn, err := transport.Dial(ctx, address, SelectTimeout)
			if err != nil {
				log.Error().Err(err).Str("proxy", address).Msg("Proxy not reachable")
				return nil
			}
			conn.Close()

			selectedProxy = address
			c.App.SetPrompt(address + " » ")
			log.Info().Str("proxy", address).Msg("Proxy selected")
			return nil
		},
	})
	// Command to probe the selected proxy
	app.AddCommand(&grumble.Command{
		Name: "probe",
		Help: "time a full exchange against the selected proxy",
		Flags: func(f *grumble.Flags) {
			f.String("t", "target", probe.DefaultTarget, "CONNECT destination used by the probe")
			f.Duration("d", "timeout", probe.DefaultTimeout, "bound for the whole probe")
			f.Bool("s", "skip-auth", false, "send no method selection")
		},
		Run: func(c *grumble.Context) error {
			if selectedProxy == "" {
				log.Warn().Msg("No proxy selected. Use 'use <proxy-address>' first")
				return nil
			}

			summary, err := probe.Run(context.Background(), probe.Config{
				Proxy:    selectedProxy,
				Target:   c.Flags.String("target"),
				Timeout:  c.Flags.Duration("timeout"),
				SkipAuth: c.Flags.Bool("skip-auth"),
				Logger:   log.Logger,
			})
			if err != nil {
				log.Error().Err(err).Msg("Probe failed")
			}

			// The summary still shows how far the exchange got.
			c.App.Println(RenderProbeTable(summary))
			return nil
		},
	})
	// Command to issue a single request and report the reply
	app.AddCommand(&grumble.Command{
		Name: "check",
		Help: "issue one request through the selected proxy and report the reply",
		Flags: func(f *grumble.Flags) {
			f.String("c", "cmd", "connect", "request command: connect, bind or udp")
			f.Bool("w", "wait", false, "after a granted bind, wait for the inbound peer")
			f.Bool("s", "skip-auth", false, "send no method selection")
			f.Duration("d", "timeout", RequestTimeout, "dial timeout, also bounds --wait")
		},
		Args: func(a *grumble.Args) {
			a.String("host", "target host", grumble.Default(""))
			a.Uint64("port", "target port", grumble.Default(uint64(0)))
		},
		Run: func(c *grumble.Context) error {
			if selectedProxy == "" {
				log.Warn().Msg("No proxy selected. Use 'use <proxy-address>' first")
				return nil
			}

			cmd, err := commandFromName(c.Flags.String("cmd"))
			if err != nil {
				log.Error().Err(err).Msg("Invalid request command")
				return nil
			}
			port := c.Args.Uint64("port")
			if port > 65535 {
				log.Error().Uint64("port", port).Msg("Invalid port")
				return nil
			}
			var target *socks5.TargetAddr
			if host := c.Args.String("host"); host != "" {
				target = socks5.NewTargetAddr(host, uint16(port))
			} else if cmd != socks5.CmdUDPAssociate {
				log.Error().Stringer("cmd", cmd).Msg("Host and port are required")
				return nil
			}

			config := sessionConfig(c)
			conn, err := transport.Dial(context.Background(), selectedProxy, config.ConnectTimeout)
			if err != nil {
				log.Error().Err(err).Str("proxy", selectedProxy).Msg("Proxy dial failed")
				return nil
			}
			stream, err := socks5.UseConn(conn, nil, config)
			if err != nil {
				conn.Close()
				log.Error().Err(err).Msg("Session setup failed")
				return nil
			}
			defer stream.Close()

			bound, err := stream.Request(cmd, target)
			if err != nil {
				log.Error().Err(err).Stringer("cmd", cmd).Msg("Request refused")
				return nil
			}
			log.Info().
				Stringer("cmd", cmd).
				Str("method", socks5.MethodName(stream.Method())).
				Str("bound", bound.String()).
				Msg("Request granted")

			if cmd == socks5.CmdBind && c.Flags.Bool("wait") {
				log.Info().Str("bound", bound.String()).Msg("Waiting for inbound peer")
				stream.SetReadDeadline(time.Now().Add(c.Flags.Duration("timeout")))
				peer, err := stream.ReadBindReply()
				if err != nil {
					log.Error().Err(err).Msg("No peer connected")
					return nil
				}
				log.Info().Str("peer", peer.String()).Msg("Peer connected")
			}
			return nil
		},
	})
	// Command to start a local forwarder through the selected proxy
	app.AddCommand(&grumble.Command{
		Name:    "forward",
		Aliases: []string{"fwd"},
		Help:    "listen locally and tunnel each connection to the target",
		Flags: func(f *grumble.Flags) {
			f.String("l", "listen", "127.0.0.1:0", "local listen address")
			f.Bool("s", "skip-auth", false, "send no method selection")
			f.Duration("d", "timeout", RequestTimeout, "proxy dial timeout per connection")
		},
		Args: func(a *grumble.Args) {
			a.String("host", "target host")
			a.Uint64("port", "target port")
		},
		Run: func(c *grumble.Context) error {
			if selectedProxy == "" {
				log.Warn().Msg("No proxy selected. Use 'use <proxy-address>' first")
				return nil
			}
			port := c.Args.Uint64("port")
			if port == 0 || port > 65535 {
				log.Error().Uint64("port", port).Msg("Invalid port")
				return nil
			}

			f := forward.New(
				context.Background(),
				selectedProxy,
				c.Args.String("host"),
				uint16(port),
				nil,
				sessionConfig(c),
			)
			if err := f.Start(c.Flags.String("listen")); err != nil {
				log.Error().Err(err).Msg("Failed to start forwarder")
				return nil
			}

			forwarders.Store(f.ID.String(), f)
			return nil
		},
	})
	// Command to list active forwarders
	app.AddCommand(&grumble.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Help:    "list active forwarders",
		Run: func(c *grumble.Context) error {
			active := activeForwarders()
			if len(active) == 0 {
				log.Info().Msg("No active forwarders")
				return nil
			}
			c.App.Println(RenderForwardTable(active))
			return nil
		},
	})
	// Command to stop forwarders
	app.AddCommand(&grumble.Command{
		Name:    "close",
		Aliases: []string{"rm"},
		Help:    "stop one or more forwarders",
		Args: func(a *grumble.Args) {
			a.StringList("forward-id", "IDs of the forwarders to stop")
		},
		Completer: CompleteForwards,
		Run: func(c *grumble.Context) error {
			ids := c.Args.StringList("forward-id")
			if len(ids) == 0 {
				log.Warn().Msg("No forwarder ID given")
				return nil
			}

			for _, id := range ids {
				value, exists := forwarders.LoadAndDelete(id)
				if !exists {
					log.Warn().Str("forward_id", id).Msg("No such forwarder")
					continue
				}
				if f, ok := value.(*forward.Forwarder); ok {
					f.Stop()
					log.Info().Str("forward_id", id).Msg("Forwarder stopped")
				}
			}
			return nil
		},
	})
}

// CompleteForwards provides tab completion for forwarder IDs.
func CompleteForwards(_ string, _ []string) []string {
	var ids []string
	forwarders.Range(func(key, _ any) bool {
		if id, ok := key.(string); ok {
			ids = append(ids, id)
		}
		return true
	})
	sort.Strings(ids)
	return ids
}

// -----------------------------------------------------------------------------
// Console setup
// -----------------------------------------------------------------------------

// main is the entry point for the application. It sets up logging, the
// CLI, and the command handlers.
func main() {
	configureLogging()

	app := setupCLI()

	AddCommands(app)

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

// configureLogging routes zerolog through a console writer at info level.
func configureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	})

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// setupCLI initializes the command-line interface with basic
// configuration. Returns a configured grumble App instance.
func setupCLI() *grumble.App {
	// Command history persists across console runs.
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".socksdial" // current working directory
	} else {
		histFile = filepath.Join(home, ".socksdial") // home directory
	}

	app := grumble.New(&grumble.Config{
		Name:        "socksdial",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.String("x", "proxy", "", "proxy to select on startup, host:port")
			f.Bool("d", "debug", false, "enable debug logging")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		if flags.Bool("debug") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}

		if proxy := flags.String("proxy"); proxy != "" {
			if _, _, err := net.SplitHostPort(proxy); err != nil {
				return fmt.Errorf("invalid proxy address %q: %v", proxy, err)
			}
			selectedProxy = proxy
			a.SetPrompt(proxy + " » ")
		}
		return nil
	})

	return app
}
