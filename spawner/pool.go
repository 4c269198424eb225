// Package spawner implements the task-spawning capability the peer
// runtime relies on for every piece of concurrent work, so that no
// caller ever performs blocking I/O on its own goroutine. It generalizes
// the wg.Add/go/wg.Done pattern used directly in P2PSyncClient.AddPeer
// into a reusable, joinable API.
package spawner

import (
	"context"
	"sync"

	"github.com/radicle-link/linkd/p2p"
	"golang.org/x/sync/errgroup"
)

// Pool tracks every task it spawns so Close can wait for them to finish.
type Pool struct {
	wg sync.WaitGroup
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{}
}

// handle implements p2p.JoinHandle over a goroutine's completion channel.
type handle struct {
	done chan error
}

func (h *handle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn runs task on its own goroutine and returns immediately. Most
// callers (e.g. the ingress-stream consumer OpenStream starts) detach
// and never inspect the returned handle.
func (p *Pool) Spawn(ctx context.Context, task func(ctx context.Context)) p2p.JoinHandle {
	h := &handle{done: make(chan error, 1)}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		task(ctx)
		h.done <- nil
	}()
	return h
}

// SpawnBlocking dispatches a blocking call to a dedicated goroutine via
// errgroup, so synchronous I/O never stalls the caller's own goroutine.
// Unlike Spawn, the task's error is preserved and surfaced through the
// returned handle's Wait.
func (p *Pool) SpawnBlocking(ctx context.Context, task func(ctx context.Context) error) p2p.JoinHandle {
	h := &handle{done: make(chan error, 1)}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return task(gctx) })
		h.done <- g.Wait()
	}()
	return h
}

// Close blocks until every task spawned through p has returned.
func (p *Pool) Close() {
	p.wg.Wait()
}
