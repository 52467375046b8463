package worker

import (
	"context"
	"sync"
)

// Job is a unit of dispatch work executed by the pool.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of goroutines with a bounded queue. Each
// delivery channel gets its own Pool so that one slow provider cannot starve
// the others.
type Pool struct {
	numWorkers int
	jobs       chan Job
	wg         sync.WaitGroup
}

func NewPool(numWorkers, bufferSize int) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(ctx)
		}
	}
}

// Submit blocks when the queue is full; backpressure on the producer keeps
// fan-out memory bounded.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
