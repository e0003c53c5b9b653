// Package dispatcher fans inbound table messages out to handlers keyed by
// message type and keeps a short, non-authoritative history.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
	"github.com/angelmondragon/splitpay-backend/pkg/logger"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// DefaultHistorySize is how many recent messages are retained.
const DefaultHistorySize = 50

// diagnosticOutput receives handler failures when no sink or logger is given.
var diagnosticOutput io.Writer = os.Stderr

// Handler receives a published message. Handlers must tolerate replays.
type Handler func(msg types.Message)

// DiagnosticSink observes handler failures.
type DiagnosticSink func(msgType enums.MessageType, err error)

type subscriber struct {
	id      uint64
	handler Handler
}

// Dispatcher is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Dispatcher struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[enums.MessageType][]subscriber

	histMu  sync.Mutex
	history []types.Message
	start   int
	size    int

	sink DiagnosticSink
}

type Option func(*Dispatcher)

// WithHistorySize overrides the number of retained messages.
func WithHistorySize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.history = make([]types.Message, n)
		}
	}
}

// WithDiagnosticSink replaces the default failure sink.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(d *Dispatcher) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithLogger reports handler failures through the structured logger.
func WithLogger(logg *logger.Logger) Option {
	return func(d *Dispatcher) {
		if logg != nil {
			d.sink = logSink(logg)
		}
	}
}

func logSink(logg *logger.Logger) DiagnosticSink {
	return func(msgType enums.MessageType, err error) {
		ctx := logg.WithField(context.Background(), "message_type", msgType.String())
		logg.Error(ctx, "dispatcher handler failed", err)
	}
}

// New returns an empty dispatcher. Handler failures go to stderr as
// structured logs unless WithDiagnosticSink or WithLogger says otherwise.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[enums.MessageType][]subscriber),
		history:  make([]types.Message, DefaultHistorySize),
		sink:     logSink(logger.New(logger.Options{ServiceName: "dispatcher", Output: diagnosticOutput})),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers handler for msgType. The returned token is the only
// way to remove the registration.
func (d *Dispatcher) Subscribe(msgType enums.MessageType, handler Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[msgType] = append(d.handlers[msgType], subscriber{id: id, handler: handler})
	return &Subscription{dispatcher: d, msgType: msgType, id: id}
}

// Publish records msg in history and delivers it to the handlers subscribed
// to msgType when the call started. A panicking handler is reported to the
// diagnostic sink and does not stop delivery to the rest.
func (d *Dispatcher) Publish(msgType enums.MessageType, msg types.Message) {
	d.record(msg)

	d.mu.Lock()
	current := d.handlers[msgType]
	snapshot := make([]subscriber, len(current))
	copy(snapshot, current)
	d.mu.Unlock()

	for _, sub := range snapshot {
		d.invoke(msgType, sub.handler, msg)
	}
}

func (d *Dispatcher) invoke(msgType enums.MessageType, handler Handler, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.sink(msgType, fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()))
		}
	}()
	handler(msg)
}

func (d *Dispatcher) unsubscribe(msgType enums.MessageType, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[msgType]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		remaining := make([]subscriber, 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		remaining = append(remaining, subs[i+1:]...)
		if len(remaining) == 0 {
			delete(d.handlers, msgType)
		} else {
			d.handlers[msgType] = remaining
		}
		return
	}
}

// HandlerCount reports how many handlers are registered for msgType.
func (d *Dispatcher) HandlerCount(msgType enums.MessageType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[msgType])
}

// HasType reports whether msgType still has a registration entry.
func (d *Dispatcher) HasType(msgType enums.MessageType) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[msgType]
	return ok
}

func (d *Dispatcher) record(msg types.Message) {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	capacity := len(d.history)
	if d.size < capacity {
		d.history[(d.start+d.size)%capacity] = msg
		d.size++
		return
	}
	d.history[d.start] = msg
	d.start = (d.start + 1) % capacity
}

// History returns the retained messages, oldest first. It is a display aid
// only and never replayed to handlers.
func (d *Dispatcher) History() []types.Message {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	out := make([]types.Message, d.size)
	for i := 0; i < d.size; i++ {
		out[i] = d.history[(d.start+i)%len(d.history)]
	}
	return out
}

// Subscription is a handle to one registration.
type Subscription struct {
	dispatcher *Dispatcher
	msgType    enums.MessageType
	id         uint64
	once       sync.Once
}

// Unsubscribe removes the registration. Repeated calls are no-ops.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.dispatcher.unsubscribe(s.msgType, s.id)
	})
}

// Group releases a consumer's subscriptions together.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (g *Group) Add(subs ...*Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, subs...)
}

// Close unsubscribes everything added so far.
func (g *Group) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
