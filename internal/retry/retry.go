// Package retry redelivers messages after a fixed delay and routes them to
// the dead-letter queue once their attempts are exhausted.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/amenagements/internal/logging"
	"github.com/dharsanguruparan/amenagements/internal/metrics"
	"github.com/dharsanguruparan/amenagements/internal/model"
	"github.com/dharsanguruparan/amenagements/internal/queue"
	"github.com/dharsanguruparan/amenagements/internal/worker"
)

// Redeliverable is a message carrying its own attempt counter.
type Redeliverable interface {
	queue.Message
	Attempts() int
	NextAttempt() queue.Message
}

// Policy is a fixed-delay redelivery policy. MaxAttempts <= 0 disables the
// bound.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Outcome tells the caller what Redeliver did.
type Outcome int

const (
	Redelivered Outcome = iota
	DeadLettered
)

// Scheduler schedules redeliveries on the bus.
type Scheduler struct {
	bus     queue.Dispatcher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScheduler constructs a Scheduler.
func NewScheduler(bus queue.Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{bus: bus, logger: logger, metrics: m}
}

// Redeliver publishes the next attempt of msg after p.Delay, or a dead letter
// when the attempt about to be scheduled would exceed p.MaxAttempts.
func (s *Scheduler) Redeliver(ctx context.Context, msg Redeliverable, p Policy, cause error) (Outcome, error) {
	attempt := msg.Attempts() + 1
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return DeadLettered, s.DeadLetter(ctx, msg, cause)
	}
	if err := s.bus.Dispatch(ctx, msg.NextAttempt(), queue.WithDelay(p.Delay)); err != nil {
		return Redelivered, fmt.Errorf("schedule redelivery: %w", err)
	}
	s.metrics.Redelivered(msg.TaskType())
	s.logger.WarnContext(ctx, "redelivery scheduled",
		slog.String("task", msg.TaskType()), slog.Int("attempt", attempt),
		slog.Duration("delay", p.Delay), logging.Err(cause))
	return Redelivered, nil
}

// DeadLetter routes msg to the dead-letter queue without further attempts.
func (s *Scheduler) DeadLetter(ctx context.Context, msg Redeliverable, cause error) error {
	attempt := msg.Attempts() + 1
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := s.bus.Dispatch(ctx, queue.DeadLetter{
		OriginalType: msg.TaskType(),
		Payload:      payload,
		Attempts:     attempt,
		Reason:       reason,
	}); err != nil {
		return fmt.Errorf("dispatch dead letter: %w", err)
	}
	s.metrics.DeadLettered(msg.TaskType())
	s.logger.ErrorContext(ctx, "message dead-lettered",
		slog.String("task", msg.TaskType()), slog.Int("attempts", attempt), logging.Err(cause))
	return nil
}

// DeadLetterStore persists dead letters for operators.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, dl *model.DeadLetter) error
}

// DeadLetterHandler consumes the dead-letter queue.
type DeadLetterHandler struct {
	store  DeadLetterStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDeadLetterHandler constructs a DeadLetterHandler.
func NewDeadLetterHandler(store DeadLetterStore, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{store: store, logger: logger, now: time.Now}
}

// Register subscribes the handler on the dead-letter queue.
func (h *DeadLetterHandler) Register(r *worker.Router) {
	worker.Subscribe(r, "retry.dead_letter", 0, h.Handle)
}

// Handle persists msg in the operator-visible dead-letter table.
func (h *DeadLetterHandler) Handle(ctx context.Context, msg queue.DeadLetter) error {
	dl := &model.DeadLetter{
		ID:        uuid.NewString(),
		TaskType:  msg.OriginalType,
		Payload:   msg.Payload,
		Attempts:  msg.Attempts,
		Reason:    msg.Reason,
		CreatedAt: h.now().UTC(),
	}
	if err := h.store.SaveDeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("save dead letter: %w", err)
	}
	h.logger.ErrorContext(ctx, "dead letter recorded",
		slog.String("id", dl.ID), slog.String("task", dl.TaskType), slog.String("reason", dl.Reason))
	return nil
}
