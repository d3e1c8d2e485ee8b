// Package compute_pool runs data-parallel CPU work (mip chains, block compression, quadtree rows)
// on a bounded set of reusable goroutines.
package compute_pool

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// queueSize bounds the number of chunks submitted per ForEach call.
const queueSize = 256

// ComputePool splits index ranges into chunks and runs them on pooled workers.
type ComputePool interface {
	// ForEach calls fn once for every index in [0, n) and returns after all calls finished.
	// Calls may run concurrently and in any order.
	//
	// Parameters:
	//   - n: the number of work items
	//   - fn: the per-item work
	ForEach(n int, fn func(i int))

	// Workers returns the configured worker count.
	Workers() int
}

type computePool struct {
	pool    worker.DynamicWorkerPool
	workers int
	nextID  int
	mu      sync.Mutex
}

var _ ComputePool = &computePool{}

// NewComputePool creates a pool backed by a dynamic worker pool. Workers start on demand and
// are kept for the life of the pool.
//
// Parameters:
//   - workers: the maximum number of concurrent workers, values below one run serially
//
// Returns:
//   - ComputePool: the new pool
func NewComputePool(workers int) ComputePool {
	if workers <= 1 {
		return Serial()
	}
	return &computePool{
		pool:    worker.NewDynamicWorkerPool(workers, queueSize, 1*time.Second),
		workers: workers,
	}
}

func (p *computePool) Workers() int {
	return p.workers
}

func (p *computePool) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	chunks := min(n, p.workers*4, queueSize)
	if chunks <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	// The pool's own Wait returns only once every worker has stopped, so a WaitGroup is the barrier.
	var wg sync.WaitGroup
	per := (n + chunks - 1) / chunks
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		wg.Add(1)
		p.pool.SubmitTask(worker.Task{
			ID: p.taskID(),
			Do: func() (any, error) {
				defer wg.Done()
				for i := start; i < end; i++ {
					fn(i)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

func (p *computePool) taskID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return p.nextID
}

type serialPool struct{}

// Serial returns a ComputePool that runs every item on the calling goroutine.
//
// Returns:
//   - ComputePool: the serial pool
func Serial() ComputePool {
	return serialPool{}
}

func (serialPool) Workers() int { return 1 }

func (serialPool) ForEach(n int, fn func(i int)) {
	for i := 0; i < n; i++ {
		fn(i)
	}
}

// Or returns p, or the serial pool when p is nil.
func Or(p ComputePool) ComputePool {
	if p == nil {
		return Serial()
	}
	return p
}
