package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine with a name, optional parent context
// Example usage:
//
//	groutine.Go(ctx, "mtu-negotiation", func(ctx context.Context) {
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

// Group is the long-lived worker context of a session. Workers started with
// Go share its context; Stop cancels that context and waits for them.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup derives the group context from parent.
func NewGroup(parent context.Context) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the group context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts a named worker bound to the group context.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(g.ctx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Stop cancels the group context and waits for every worker to return.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
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
