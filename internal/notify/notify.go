// Package notify carries post-commit notifications to players and operators.
// Publishers are injected into the services that emit events; nothing here
// is process-global.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventType names a notification
type EventType string

const (
	EventTokenTransfer   EventType = "token_transfer"
	EventTokenRequest    EventType = "token_request"
	EventAccountBanned   EventType = "account_banned"
	EventAccountUnbanned EventType = "account_unbanned"
	EventSessionFlagged  EventType = "session_flagged"
)

// Event is delivered to one account, or to operators when AccountID is nil.
type Event struct {
	Type      EventType      `json:"type"`
	AccountID uuid.UUID      `json:"account_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ForOperators reports whether the event targets the operator channel.
func (e Event) ForOperators() bool {
	return e.AccountID == uuid.Nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Send publishes ev and logs a failure instead of returning it; a committed
// unit of work is never undone because delivery failed.
func Send(ctx context.Context, p Publisher, log logrus.FieldLogger, ev Event) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":      ev.Type,
			"account_id": ev.AccountID,
		}).Warn("notification not delivered")
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Multi fans an event out to several publishers, returning the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Observed wraps p and calls onFailure for every event it fails to deliver.
func Observed(p Publisher, onFailure func()) Publisher {
	return observed{next: p, onFailure: onFailure}
}

type observed struct {
	next      Publisher
	onFailure func()
}

func (o observed) Publish(ctx context.Context, ev Event) error {
	err := o.next.Publish(ctx, ev)
	if err != nil && o.onFailure != nil {
		o.onFailure()
	}
	return err
}
