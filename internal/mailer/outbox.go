package mailer

import (
	"context"
	"sync"
)

// Sent is a mail captured by an Outbox.
type Sent struct {
	Kind        Kind
	To          string
	Data        map[string]string
	Attachments []Attachment
}

// Outbox is an in-memory Sender for tests and dry runs.
type Outbox struct {
	mu   sync.Mutex
	sent []Sent
	// Err, when set, is wrapped and returned by every Send.
	Err error
}

// Send renders the mail to validate the template, then records it.
func (o *Outbox) Send(_ context.Context, kind Kind, to string, data map[string]string, attachments ...Attachment) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return &Error{Kind: kind, To: to, Op: OpSend, Err: o.Err}
	}
	if _, _, err := Render(kind, data); err != nil {
		return &Error{Kind: kind, To: to, Op: OpRender, Err: err}
	}
	o.sent = append(o.sent, Sent{Kind: kind, To: to, Data: data, Attachments: attachments})
	return nil
}

// Sent returns a copy of the recorded mails.
func (o *Outbox) Sent() []Sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Sent, len(o.sent))
	copy(out, o.sent)
	return out
}

// OfKind returns the recorded mails of kind.
func (o *Outbox) OfKind(kind Kind) []Sent {
	var out []Sent
	for _, s := range o.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
