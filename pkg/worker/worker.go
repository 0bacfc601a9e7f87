package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/congregation-messenger/pkg/logger"
)

var ErrStopped = errors.New("worker pool stopped")

type Handler[T any] func(workerIndex int, job T)

// Pool runs a fixed number of goroutines over a buffered job channel.
// Jobs still buffered when Stop is called are dropped.
type Pool[T any] struct {
	jobs    chan T
	workers int
	do      Handler[T]
	quit    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewPool[T any](bufferSize, workers int, do Handler[T]) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T]{
		jobs:    make(chan T, bufferSize),
		workers: workers,
		do:      do,
		quit:    make(chan struct{}),
	}
}

func (p *Pool[T]) Workers() int { return p.workers }

// Pending is the number of buffered jobs not yet picked up.
func (p *Pool[T]) Pending() int { return len(p.jobs) }

// Start launches the workers and returns immediately.
func (p *Pool[T]) Start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(index int) {
			defer p.wg.Done()
			for {
				select {
				case job := <-p.jobs:
					p.do(index, job)
				case <-p.quit:
					return
				}
			}
		}(i)
	}
}

// Enqueue blocks while the buffer is full, until ctx is done or the pool stops.
func (p *Pool[T]) Enqueue(ctx context.Context, job T) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrStopped
	}
}

// Stop signals every worker and waits for running jobs to return.
func (p *Pool[T]) Stop() {
	p.once.Do(func() {
		logger.Info("worker pool is shutting down", "workers", p.workers, "dropped", len(p.jobs))
		close(p.quit)
	})
	p.wg.Wait()
}
