package socks5

import (
	"time"

	"github.com/rs/zerolog"
)

// Config carries the per-stream settings. The zero value is ready to
// use: no dial timeout, normal method negotiation, and a disabled
// logger. Setters return the receiver so options can be chained:
//
//	cfg := new(socks5.Config).
//		SetConnectTimeout(5 * time.Second).
//		SetSkipAuth(true)
type Config struct {
	// ConnectTimeout bounds the TCP dial to the proxy. Zero means no
	// limit beyond what the caller's context imposes.
	ConnectTimeout time.Duration

	// SkipAuth suppresses the method selection exchange entirely. The
	// request frame becomes the first bytes on the wire, which only
	// works against proxies configured to expect exactly that.
	SkipAuth bool

	// Logger receives debug checkpoints for negotiation, request and
	// reply handling. The zero logger discards everything.
	Logger zerolog.Logger
}

// SetConnectTimeout bounds the proxy dial and returns the config.
func (c *Config) SetConnectTimeout(d time.Duration) *Config {
	c.ConnectTimeout = d
	return c
}

// SetSkipAuth toggles the negotiation bypass and returns the config.
func (c *Config) SetSkipAuth(skip bool) *Config {
	c.SkipAuth = skip
	return c
}

// SetLogger attaches a logger for protocol checkpoints and returns the
// config.
func (c *Config) SetLogger(logger zerolog.Logger) *Config {
	c.Logger = logger
	return c
}
