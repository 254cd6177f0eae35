// Package processing runs the message router in-process. It backs the CLI's
// inline mode and the end-to-end tests: dispatched messages are queued in
// memory and delivered to the router by a small pool of goroutines, or
// drained synchronously with RunUntilIdle.
package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// ErrQueueFull is returned by Dispatch when the started bus cannot accept
// more work.
var ErrQueueFull = errors.New("processing queue full")

// Job is one message waiting for delivery.
type Job struct {
	TaskType string
	Payload  []byte
}

// LocalBus is a queue.Dispatcher delivering to a worker.Router.
type LocalBus struct {
	router  *worker.Router
	logger  *slog.Logger
	workers int

	mu      sync.Mutex
	pending []Job
	history []queue.Dispatched
	delayed []queue.Dispatched
	started bool
	jobs    chan Job
	wg      sync.WaitGroup
}

// New builds a LocalBus with queue capacity tied to worker count.
func New(router *worker.Router, logger *slog.Logger, workers int) *LocalBus {
	if workers <= 0 {
		workers = 1
	}
	return &LocalBus{
		router:  router,
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, workers*4),
	}
}

// Dispatch queues msg. Delayed messages are held until Start; once started
// they are delivered after their delay.
func (b *LocalBus) Dispatch(_ context.Context, msg queue.Message, opts ...queue.Option) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msg.TaskType(), err)
	}
	job := Job{TaskType: msg.TaskType(), Payload: payload}
	delay := queue.Delay(opts...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, queue.Dispatched{Message: msg, Delay: delay})
	switch {
	case delay > 0 && b.started:
		time.AfterFunc(delay, func() { b.submit(job) })
	case delay > 0:
		b.delayed = append(b.delayed, queue.Dispatched{Message: msg, Delay: delay})
	case b.started:
		select {
		case b.jobs <- job:
		default:
			b.logger.Error("processing queue full, dropping message", slog.String("task", job.TaskType))
			return ErrQueueFull
		}
	default:
		b.pending = append(b.pending, job)
	}
	return nil
}

func (b *LocalBus) submit(job Job) {
	select {
	case b.jobs <- job:
	default:
		b.logger.Error("processing queue full, dropping delayed message", slog.String("task", job.TaskType))
	}
}

// Start launches worker goroutines. Messages queued before Start are handed
// over to them.
func (b *LocalBus) Start(ctx context.Context) {
	b.mu.Lock()
	b.started = true
	backlog := b.pending
	b.pending = nil
	b.mu.Unlock()
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
	go func() {
		for _, job := range backlog {
			select {
			case <-ctx.Done():
				return
			case b.jobs <- job:
			}
		}
	}()
}

// Wait blocks until every worker exited after ctx was cancelled.
func (b *LocalBus) Wait() { b.wg.Wait() }

func (b *LocalBus) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.jobs:
			b.deliver(ctx, job)
		}
	}
}

func (b *LocalBus) deliver(ctx context.Context, job Job) error {
	if err := b.router.Deliver(ctx, job.TaskType, job.Payload); err != nil {
		b.logger.WarnContext(ctx, "inline delivery failed", slog.String("task", job.TaskType), logging.Err(err))
		return err
	}
	return nil
}

// RunUntilIdle delivers queued messages in FIFO order, including the ones
// published while draining, until none is left. Delivery errors do not stop
// the drain; they are joined and returned.
func (b *LocalBus) RunUntilIdle(ctx context.Context) error {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return errors.Join(errs...)
		}
		job := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
		if err := b.deliver(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.TaskType, err))
		}
	}
}

// History returns every dispatched message, delayed ones included.
func (b *LocalBus) History() []queue.Dispatched {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queue.Dispatched, len(b.history))
	copy(out, b.history)
	return out
}

// OfType returns the dispatched messages with the given task type.
func (b *LocalBus) OfType(taskType string) []queue.Dispatched {
	var out []queue.Dispatched
	for _, d := range b.History() {
		if d.Message.TaskType() == taskType {
			out = append(out, d)
		}
	}
	return out
}

// Delayed returns the delayed messages held before Start.
func (b *LocalBus) Delayed() []queue.Dispatched {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queue.Dispatched, len(b.delayed))
	copy(out, b.delayed)
	return out
}
