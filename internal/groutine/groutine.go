// Package groutine starts named background goroutines. The name is attached
// as a pprof label so background workers show up in profiles.
package groutine

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a named goroutine. A nil parentCtx means context.Background().
//
//	groutine.Go(ctx, "disconnect-watch", func(ctx context.Context) {
//	    <-transport.Disconnected()
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GoSafe is Go with panic recovery. A panic is logged with its stack and
// passed to onPanic, which may be nil.
func GoSafe(parentCtx context.Context, name string, logger *logrus.Logger, fn func(ctx context.Context), onPanic func(err error)) {
	Go(parentCtx, name, func(ctx context.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err := fmt.Errorf("goroutine %q panicked: %v", GetName(ctx), r)
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"goroutine": GetName(ctx),
					"panic":     r,
					"stack":     string(debug.Stack()),
				}).Error("Recovered from panic")
			}
			if onPanic != nil {
				onPanic(err)
			}
		}()
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
