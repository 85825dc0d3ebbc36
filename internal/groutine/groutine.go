// Package groutine starts named goroutines. The name shows up as a pprof
// label, which makes goroutine dumps of the event loop and sink dispatcher
// readable.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts fn on a new goroutine labeled with name. A nil parentCtx means
// context.Background().
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	labels := pprof.Labels("goroutine_name", name)
	go pprof.Do(parentCtx, labels, fn)
}
