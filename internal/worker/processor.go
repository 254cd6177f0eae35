// Package worker plugs the workflow handlers into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/queue"
)

// HandlerFunc handles the raw JSON payload of a task.
type HandlerFunc func(ctx context.Context, payload []byte) error

type subscriber struct {
	name     string
	priority int
	seq      int
	handle   HandlerFunc
}

// Router fans a task out to every subscriber of its type. Subscribers run
// sequentially by descending priority; equal priorities keep registration
// order. The first failing subscriber stops the fan-out and its error is
// returned to asynq.
type Router struct {
	subs    map[string][]subscriber
	seq     int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter constructs an empty router.
func NewRouter(logger *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{subs: make(map[string][]subscriber), logger: logger, metrics: m}
}

// Subscribe registers fn for taskType.
func (r *Router) Subscribe(taskType, name string, priority int, fn HandlerFunc) {
	r.seq++
	list := append(r.subs[taskType], subscriber{name: name, priority: priority, seq: r.seq, handle: fn})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	r.subs[taskType] = list
}

// Subscribe registers a typed handler; the payload is decoded into T.
func Subscribe[T queue.Message](r *Router, name string, priority int, fn func(context.Context, T) error) {
	var zero T
	r.Subscribe(zero.TaskType(), name, priority, func(ctx context.Context, payload []byte) error {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode %s payload: %w", zero.TaskType(), err)
		}
		return fn(ctx, msg)
	})
}

// Subscribers returns the subscriber names of taskType in execution order.
func (r *Router) Subscribers(taskType string) []string {
	names := make([]string, 0, len(r.subs[taskType]))
	for _, s := range r.subs[taskType] {
		names = append(names, s.name)
	}
	return names
}

// TaskTypes lists every task type with at least one subscriber.
func (r *Router) TaskTypes() []string {
	out := make([]string, 0, len(r.subs))
	for t := range r.subs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Deliver runs the subscribers of taskType against payload.
func (r *Router) Deliver(ctx context.Context, taskType string, payload []byte) error {
	subs, ok := r.subs[taskType]
	if !ok {
		return fmt.Errorf("no handler for task %s: %w", taskType, asynq.SkipRetry)
	}
	for _, s := range subs {
		start := time.Now()
		err := s.handle(ctx, payload)
		r.metrics.ObserveHandler(taskType, s.name, time.Since(start), err)
		if err != nil {
			r.logger.ErrorContext(ctx, "handler failed",
				slog.String("task", taskType), slog.String("handler", s.name), logging.Err(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Handler builds the asynq mux serving every subscribed task type.
func (r *Router) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, taskType := range r.TaskTypes() {
		taskType := taskType
		mux.HandleFunc(taskType, func(ctx context.Context, task *asynq.Task) error {
			return r.Deliver(ctx, taskType, task.Payload())
		})
	}
	return mux
}
