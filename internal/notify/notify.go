// Package notify carries user-facing notification requests out of the cart
// and wishlist stores. The stores never render anything; a Sink decides what
// happens to a request.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Kind is the severity of a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Action is an optional call to action attached to a notification.
type Action struct {
	Label   string
	OnClick func()
}

// Notification is a single request to show a message to the user.
type Notification struct {
	Message string
	Kind    Kind
	Action  *Action
}

// Sink accepts notification requests.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Notification) {})

var _ Sink = (*Queue)(nil)

// Queue buffers notifications until the host drains them, e.g. into an HTTP
// response.
type Queue struct {
	mu    sync.Mutex
	items []Notification
}

// Notify appends n to the queue.
func (q *Queue) Notify(n Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Drain returns all queued notifications in arrival order and empties the
// queue.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// LogSink writes notifications to a zap logger, optionally forwarding them
// to next.
type LogSink struct {
	lg   *zap.Logger
	next Sink
}

// NewLogSink creates a LogSink. next may be nil.
func NewLogSink(lg *zap.Logger, next Sink) *LogSink {
	return &LogSink{lg: lg, next: next}
}

// Notify logs n at debug level and forwards it.
func (s *LogSink) Notify(n Notification) {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
	}
	if n.Action != nil {
		fields = append(fields, zap.String("action", n.Action.Label))
	}
	s.lg.Debug("Notification", fields...)
	if s.next != nil {
		s.next.Notify(n)
	}
}
