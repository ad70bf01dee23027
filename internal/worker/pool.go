package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/capi-relay/internal/domain"
)

// Sender performs one at-most-once send.
type Sender interface {
	Send(ctx context.Context, ev *domain.TrackedEvent, testCode string) domain.DispatchResult
}

// Job is one event waiting to be sent.
type Job struct {
	Event    *domain.TrackedEvent
	TestCode string
}

// Pool manages a fixed number of worker goroutines that send events in the
// background. Results are reported through the sender's counters, log and
// monitor; nothing waits on them.
type Pool struct {
	numWorkers int
	jobs       chan Job
	sender     Sender
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a worker pool. queueSize <= 0 defaults to numWorkers*16.
func NewPool(numWorkers, queueSize int, sender Sender, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 16
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, queueSize),
		sender:     sender,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.jobs))
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is stopped; the event is then dropped.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("pool stopped, event dropped", "event_id", job.Event.EventID)
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warn("send queue full, event dropped",
			"event_id", job.Event.EventID,
			"event_name", job.Event.EventName,
		)
		return false
	}
}

// Pending returns the number of queued jobs.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Stop closes the jobs channel and waits for queued jobs to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		result := p.sender.Send(ctx, job.Event, job.TestCode)
		if !result.Success {
			p.logger.Debug("background send failed",
				"worker", id,
				"event_id", job.Event.EventID,
				"error_kind", result.ErrorKind,
			)
		}
	}
}
