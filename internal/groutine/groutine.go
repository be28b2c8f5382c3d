// Package groutine starts named goroutines carrying a pprof label, so adapter
// workers are identifiable in profiles and goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine labelled name.
//
//	groutine.Go(ctx, "advertise", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
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

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}

// Group tracks named goroutines so their owner can wait for all of them.
// The zero value is ready to use.
type Group struct {
	wg sync.WaitGroup
}

// Go starts fn like the package-level Go and tracks it until it returns.
func (g *Group) Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Wait blocks until every goroutine started through the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
