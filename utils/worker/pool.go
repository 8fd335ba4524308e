// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"runtime"
	"sync"
)

// Pool executes CPU-bound work on a bounded set of goroutines. Signature
// verification, VRF evaluation and block hashing are submitted here so
// network and timer goroutines never stall on crypto.
type Pool interface {
	// Send [f] to the pool for execution. Blocks until a worker queue slot
	// is available; returns false if the pool has been shut down.
	Send(f func()) bool
	// Do runs [f] on the pool and waits for its completion.
	Do(f func())
	// Shutdown the pool. Outstanding work is drained before workers exit.
	Shutdown()
}

type pool struct {
	requests chan func()

	shutdownOnce sync.Once
	shutdown     chan struct{}
	workersDone  sync.WaitGroup
}

// NewPool creates a pool with [size] workers; a non-positive size defaults to
// the number of cores.
func NewPool(size int) Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &pool{
		requests: make(chan func(), size),
		shutdown: make(chan struct{}),
	}
	p.workersDone.Add(size)
	for i := 0; i < size; i++ {
		go p.runWorker()
	}
	return p
}

func (p *pool) runWorker() {
	defer p.workersDone.Done()

	for {
		select {
		case <-p.shutdown:
			// Drain whatever is already queued.
			for {
				select {
				case f := <-p.requests:
					f()
				default:
					return
				}
			}
		case f := <-p.requests:
			f()
		}
	}
}

func (p *pool) Send(f func()) bool {
	select {
	case p.requests <- f:
		return true
	case <-p.shutdown:
		return false
	}
}

func (p *pool) Do(f func()) {
	done := make(chan struct{})
	if !p.Send(func() {
		defer close(done)
		f()
	}) {
		// Pool is gone; run inline so callers never deadlock on shutdown.
		f()
		return
	}
	<-done
}

func (p *pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.workersDone.Wait()
}
