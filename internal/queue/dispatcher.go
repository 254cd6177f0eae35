package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Queue names and their weights on the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Weights is passed to asynq.Config.Queues.
var Weights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// QueueFor routes a task type to its queue: state transitions first, then
// mail and documents, then reports and maintenance.
func QueueFor(taskType string) string {
	switch taskType {
	case EtatDemandeModifieTask, CharteValideeTask,
		DemandeReceptionneeTask, DemandeConformeTask, DemandeProfilValideTask,
		DemandeNonConformeTask, DemandeAttenteCharteTask, DemandeAttenteAccompTask,
		DemandeRefuseeTask, DemandeValideeTask:
		return QueueCritical
	case GenerationBilanTask, ReconciliationTask, DeadLetterTask:
		return QueueLow
	default:
		return QueueDefault
	}
}

// Dispatcher publishes messages on the bus.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message, opts ...Option) error
}

// Option tweaks a single dispatch.
type Option func(*dispatchOptions)

type dispatchOptions struct {
	delay time.Duration
}

// WithDelay postpones delivery.
func WithDelay(d time.Duration) Option {
	return func(o *dispatchOptions) { o.delay = d }
}

// Delay returns the delay carried by opts.
func Delay(opts ...Option) time.Duration {
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.delay
}

// Bus publishes messages as asynq tasks.
type Bus struct {
	client *asynq.Client
}

// NewBus wraps an asynq client.
func NewBus(client *asynq.Client) *Bus {
	return &Bus{client: client}
}

// Dispatch enqueues msg. Handler errors are retried a few times by asynq
// itself; transient external failures are redelivered explicitly by the
// handlers with their own delay.
func (b *Bus) Dispatch(ctx context.Context, msg Message, opts ...Option) error {
	task, err := NewTask(msg)
	if err != nil {
		return err
	}
	enqueueOpts := []asynq.Option{asynq.Queue(QueueFor(msg.TaskType())), asynq.MaxRetry(5)}
	if d := Delay(opts...); d > 0 {
		enqueueOpts = append(enqueueOpts, asynq.ProcessIn(d))
	}
	if _, err := b.client.EnqueueContext(ctx, task, enqueueOpts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.TaskType(), err)
	}
	return nil
}

// NewTask serializes msg into an asynq task.
func NewTask(msg Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.TaskType(), err)
	}
	return asynq.NewTask(msg.TaskType(), data), nil
}
