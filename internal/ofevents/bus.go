// Package ofevents is an internal observability bus: a nil-safe,
// non-blocking pub/sub broadcasting controller lifecycle and dispatch
// events to the admin/introspection server. It is entirely separate from
// the wire-level ofevent package, which models events exchanged with the
// backend.
package ofevents

import (
	"sync"
	"time"
)

// Source categorizes where an observability event originated.
type Source string

const (
	SourceController Source = "controller"
	SourceDispatch   Source = "dispatch"
	SourceReply      Source = "reply"
	SourceBackend    Source = "backend"
)

// Kind categorizes what kind of observability event occurred.
type Kind string

const (
	KindPhaseTransition   Kind = "phase_transition"
	KindHandlerException  Kind = "handler_exception"
	KindReplyTimeout      Kind = "reply_timeout"
	KindDatapathConnected Kind = "datapath_connected"
	KindDatapathClosed    Kind = "datapath_closed"
)

// Event is one observability record, distinct from the wire-level
// ofevent.Event exchanged with the backend.
type Event struct {
	Timestamp time.Time
	Source    Source
	Kind      Kind
	Data      map[string]any
}

// Bus is a non-blocking multi-subscriber broadcaster. A nil *Bus is valid
// and Publish on it is a no-op, so components can hold an optional Bus
// without nil-checking at every call site.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Subscribe returns a receive-only channel that receives every event
// published after this call, buffered so a slow subscriber doesn't block
// the publisher.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if b == nil {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe and closes it.
func (b *Bus) Unsubscribe(recv <-chan Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.recvToSend[recv]
	if ok {
		delete(b.recvToSend, recv)
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish broadcasts ev to every current subscriber without blocking;
// subscribers that are not ready to receive simply miss the event. Publish
// on a nil Bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
