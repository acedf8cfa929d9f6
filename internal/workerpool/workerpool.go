// Package workerpool is a bounded set of goroutines that run pushed tasks
// to completion, with a Wait that blocks until the pool has drained.
// Adapted from internal/dag/executor.go's worker loop — a channel feeding
// a fixed goroutine count, drained with a sync.WaitGroup — replacing its
// node-specific readyChan/dependents bookkeeping (which belongs to the
// evaluator, not the pool) with a generic task queue, and replacing its
// unbounded "go e.worker(...)" fixed count with a
// golang.org/x/sync/semaphore-bounded spawn so the pool can accept bursts
// of same-thread-chained tasks without pre-sizing a channel.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of work submitted to the pool.
type Task func()

// Pool runs submitted tasks on up to `concurrency` goroutines at once.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	ctx context.Context
}

// New creates a Pool bounded to concurrency simultaneous tasks. ctx governs
// acquisition of the pool's internal semaphore; it does not cancel tasks
// already running — in-flight tasks always run to completion.
func New(ctx context.Context, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		sem: semaphore.NewWeighted(int64(concurrency)),
		ctx: ctx,
	}
}

// Go submits fn to run on the pool. It returns immediately; fn runs
// asynchronously once a slot is free. Submitting after the pool's context
// is canceled runs fn synchronously on the calling goroutine so callers
// don't silently lose work during shutdown.
func (p *Pool) Go(fn Task) {
	p.wg.Add(1)
	if p.ctx.Err() != nil {
		defer p.wg.Done()
		fn()
		return
	}
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			fn()
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
