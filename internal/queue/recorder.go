package queue

import (
	"context"
	"sync"
	"time"
)

// Dispatched is a message captured by a Recorder.
type Dispatched struct {
	Message Message
	Delay   time.Duration
}

// Recorder is an in-memory Dispatcher used by tests and dry runs.
type Recorder struct {
	mu   sync.Mutex
	sent []Dispatched
	// Err, when set, is returned by every Dispatch.
	Err error
}

// Dispatch records msg.
func (r *Recorder) Dispatch(_ context.Context, msg Message, opts ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Dispatched{Message: msg, Delay: Delay(opts...)})
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Dispatched {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dispatched, len(r.sent))
	copy(out, r.sent)
	return out
}

// OfType returns the recorded messages with the given task type.
func (r *Recorder) OfType(taskType string) []Dispatched {
	var out []Dispatched
	for _, d := range r.Sent() {
		if d.Message.TaskType() == taskType {
			out = append(out, d)
		}
	}
	return out
}

// Reset forgets every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
