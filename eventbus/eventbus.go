// Package eventbus implements the typed publish/subscribe bus (C8) used to
// carry progress, error, and state-change events from the motion, camera,
// lighting, and scan orchestrator components to external collaborators
// (the HTTP UI, loggers, test harnesses) without those components holding
// references to each other.
package eventbus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published occurrence. Kind is a dotted name such as
// "scan.point_completed" or "lighting.safety_violation"; Source names the
// component that published it.
type Event struct {
	Kind        string
	Data        interface{}
	Source      string
	TimestampNs int64
}

// queueDepth bounds each subscriber's per-kind delivery queue. A slow
// subscriber never blocks a publisher; once its queue is full, further
// events for that subscriber are counted as overflow rather than
// delivered, and the count is a surfaced statistic, never a silent drop.
const queueDepth = 64

type subscriber struct {
	ch       chan Event
	overflow uint64 // atomic
}

// Bus is a process-local, typed pub/sub. Delivery to a given subscriber is
// single-threaded FIFO relative to publication order within a kind; the
// bus itself never blocks a publisher on a slow subscriber.
type Bus struct {
	mu   sync.Mutex // guards subs only; publish itself is never blocked by it for long
	subs map[string][]*subscriber
	log  *log.Logger
}

// New constructs an empty bus. logger may be nil, in which case
// log.Default() is used.
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{subs: make(map[string][]*subscriber), log: logger}
}

// Subscribe registers a new listener for one event kind and returns a
// channel of events plus an unsubscribe function. The channel is buffered;
// callers that fall behind see entries dropped, counted in OverflowStats.
func (b *Bus) Subscribe(kind string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, queueDepth)}
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s == sub {
				b.subs[kind] = append(list[:i], list[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, unsub
}

// PublishFrom emits an event on behalf of a named source component.
func (b *Bus) PublishFrom(source, kind string, data interface{}) {
	ev := Event{Kind: kind, Data: data, Source: source, TimestampNs: time.Now().UnixNano()}
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs[kind]...)
	b.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			n := atomic.AddUint64(&s.overflow, 1)
			b.log.Printf("eventbus: subscriber queue full for kind %q, overflow=%d", kind, n)
		}
	}
}

// OverflowStats returns the total overflow count across every subscriber
// of the given kind, the aggregate statistic the spec requires be
// surfaced rather than silently absorbed.
func (b *Bus) OverflowStats(kind string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, s := range b.subs[kind] {
		total += atomic.LoadUint64(&s.overflow)
	}
	return total
}

// Source returns a thin publisher bound to a fixed source name, satisfying
// the small EventPublisher interface each component package declares
// locally (camera.EventPublisher, lighting.EventPublisher, and so on) so
// those packages never import eventbus directly.
func (b *Bus) Source(name string) *SourcePublisher {
	return &SourcePublisher{bus: b, name: name}
}

// SourcePublisher adapts Bus.PublishFrom to the Publish(kind, data)
// signature each subsystem's local EventPublisher interface expects.
type SourcePublisher struct {
	bus  *Bus
	name string
}

// Publish emits an event tagged with the bound source name.
func (p *SourcePublisher) Publish(kind string, data interface{}) {
	p.bus.PublishFrom(p.name, kind, data)
}
