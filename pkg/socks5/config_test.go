package socks5

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigChain(t *testing.T) {
	cfg := new(Config).
		SetConnectTimeout(5 * time.Second).
		SetSkipAuth(true).
		SetLogger(zerolog.Nop())

	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want 5s", cfg.ConnectTimeout)
	}
	if !cfg.SkipAuth {
		t.Error("SkipAuth not set")
	}
}

func TestConfigZeroValue(t *testing.T) {
	// The zero config must be usable as-is: logging disabled, no
	// timeout, normal negotiation.
	var cfg Config
	if cfg.ConnectTimeout != 0 || cfg.SkipAuth {
		t.Errorf("zero config carries settings: %+v", cfg)
	}
	cfg.Logger.Debug().Msg("must not panic on the zero logger")
}
