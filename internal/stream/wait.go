package stream

import (
	"context"
	"time"

	"github.com/srg/bandlink/internal/protocol"
	"github.com/srg/bandlink/internal/router"
)

// waiter is the transport and router pair every loop polls
type waiter struct {
	transport protocol.Transport
	router    *router.Router
}

// check returns the reason the loop must stop, or nil to keep going
func (w waiter) check(ctx context.Context, stop <-chan struct{}) (bool, error) {
	if err := w.router.Err(); err != nil {
		return true, err
	}
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// sleep waits d unless ctx ends first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
