package forward

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Relay pipes local and remote until the remote side finishes or ctx is
// canceled. A local EOF half-closes the remote when it supports
// CloseWrite, so in-flight responses still drain back; the remote
// reaching EOF ends the session and closes both ends.
func Relay(ctx context.Context, local, remote io.ReadWriteCloser) error {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			local.Close()
			remote.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(remote, local)
		if err == nil {
			if cw, ok := remote.(interface{ CloseWrite() error }); ok {
				if cwErr := cw.CloseWrite(); cwErr == nil {
					return nil
				}
			}
		}
		closeBoth()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(local, remote)
		closeBoth()
		return err
	})

	err := g.Wait()
	// Whichever side finishes first closes the other out from under its
	// blocked copy; that unblocking error is part of normal teardown.
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
