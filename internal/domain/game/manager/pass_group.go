// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// passGroup runs the processing passes scheduled after an accepted interrupt.
// Passes share a base context that Close cancels if the drain deadline passes.
type passGroup struct {
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
	base    context.Context
	cancel  context.CancelFunc
}

func newPassGroup() *passGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &passGroup{base: ctx, cancel: cancel}
}

// Go schedules fn with a context bounded by timeout. It reports false once
// the group is closing.
func (g *passGroup) Go(timeout time.Duration, fn func(ctx context.Context)) bool {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return false
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(g.base, timeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Close refuses new passes and waits for running ones. When ctx expires first
// the running passes are cancelled and still joined before returning.
func (g *passGroup) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		<-done
		return fmt.Errorf("interrupt pass drain: %w", ctx.Err())
	}
}
