package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Submit after the queue has shut down.
var ErrStopped = errors.New("worker: queue stopped")

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// Queue feeds a fixed set of workers from a buffered job channel. The
// ingestion manager runs it with a single worker, which serializes store
// replacement: at most one aggregation cycle writes at a time.
type Queue struct {
	numWorkers int
	jobs       chan Job
	quit       chan struct{}
	process    ProcessFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewQueue(numWorkers int, bufferSize int, process ProcessFunc) *Queue {
	return &Queue{
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		quit:       make(chan struct{}),
		process:    process,
	}
}

func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.numWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.quit:
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

// Submit enqueues a job, blocking while the buffer is full. It returns
// ctx.Err() if the caller gives up first and ErrStopped after Stop.
func (q *Queue) Submit(ctx context.Context, job Job) error {
	// Checked first: a closed quit and a free buffer slot are both ready,
	// and the combined select below picks between them at random. A job
	// enqueued after Stop would never be processed.
	select {
	case <-q.quit:
		return ErrStopped
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the queue down and waits for workers to exit. Jobs still
// sitting in the buffer are dropped.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.quit)
	})
	q.wg.Wait()
}
