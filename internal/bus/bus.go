package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCap is the default bound on retained event history.
const DefaultHistoryCap = 1000

// ErrWaitTimeout is returned by WaitFor when no matching event arrives
// within the timeout.
var ErrWaitTimeout = errors.New("bus: timed out waiting for event")

// subscriptionCounter generates unique subscription sequence numbers.
var subscriptionCounter int64

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Filter, if set, skips events for which it returns false.
	Filter Filter
	// Priority orders delivery among subscribers of the same type;
	// higher priority subscribers are invoked first.
	Priority int
	// Once removes the subscription after its first delivered
	// (non-skipped) event.
	Once bool
}

// Subscription is a handle to an active subscription.
type Subscription struct {
	id       string
	typ      EventType
	handler  Handler
	filter   Filter
	priority int
	once     bool
	seq      int64
	bus      *Bus
}

// Unsubscribe removes the subscription from the bus. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.typ, s.id)
}

// TypeMetrics holds per-type publish statistics.
type TypeMetrics struct {
	// Count is the total number of events published of this type.
	Count int
	// FirstSeen is when the first event of this type was published.
	FirstSeen time.Time
	// PerMinute is Count divided by elapsed minutes since FirstSeen.
	PerMinute float64
}

// Bus is the in-process publish/subscribe hub. The embedding application
// constructs exactly one Bus and injects it into every component that
// needs it; there is no package-level singleton.
type Bus struct {
	// subs maps event types to their subscriptions.
	subs map[EventType][]*Subscription
	// history is the bounded event history ring, oldest first.
	history []Event
	// historyCap bounds the history length.
	historyCap int
	// counts tracks per-type publish counts and first-seen times.
	counts map[EventType]*typeCounter
	// mu protects subs, history, and counts. Handler invocation happens
	// outside this lock so a slow subscriber never blocks new publishes.
	mu sync.RWMutex
}

type typeCounter struct {
	count     int
	firstSeen time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistoryCap overrides the default history bound.
func WithHistoryCap(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historyCap = n
		}
	}
}

// New creates a Bus with the given options.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:       make(map[EventType][]*Subscription),
		historyCap: DefaultHistoryCap,
		counts:     make(map[EventType]*typeCounter),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish creates an event, records it in history and metrics, and
// delivers it synchronously to every matching subscriber in descending
// priority order. Subscriber failures are isolated: a panicking handler
// is recovered and logged, and delivery continues to the remaining
// subscribers. Publish never returns an error on subscriber failure.
func (b *Bus) Publish(typ EventType, data any, opts ...PublishOptions) Event {
	var o PublishOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	event := Event{
		ID:            uuid.New().String(),
		Type:          typ,
		Data:          data,
		Timestamp:     time.Now(),
		Source:        o.Source,
		Priority:      o.Priority,
		Tags:          o.Tags,
		CorrelationID: o.CorrelationID,
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if len(b.history) > b.historyCap {
		// Evict oldest first.
		b.history = b.history[len(b.history)-b.historyCap:]
	}

	c := b.counts[typ]
	if c == nil {
		c = &typeCounter{firstSeen: event.Timestamp}
		b.counts[typ] = c
	}
	c.count++

	// Snapshot matching subscribers while holding the lock; invoke them
	// after releasing it.
	matching := make([]*Subscription, len(b.subs[typ]))
	copy(matching, b.subs[typ])
	b.mu.Unlock()

	for _, sub := range matching {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		b.invoke(sub, event)
		if sub.once {
			b.remove(sub.typ, sub.id)
		}
	}

	return event
}

// invoke runs a single handler, recovering panics so one failing
// subscriber never blocks delivery to others.
func (b *Bus) invoke(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bus] subscriber %s panicked handling %s: %v", sub.id, event.Type, r)
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for the given event type and returns a
// handle that can be used to unsubscribe.
func (b *Bus) Subscribe(typ EventType, handler Handler, opts ...SubscribeOptions) *Subscription {
	var o SubscribeOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	seq := atomic.AddInt64(&subscriptionCounter, 1)
	sub := &Subscription{
		id:       fmt.Sprintf("%s-%d", typ, seq),
		typ:      typ,
		handler:  handler,
		filter:   o.Filter,
		priority: o.Priority,
		once:     o.Once,
		seq:      seq,
		bus:      b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[typ] = append(b.subs[typ], sub)
	// Highest priority first; registration order breaks ties.
	sort.SliceStable(b.subs[typ], func(i, j int) bool {
		if b.subs[typ][i].priority != b.subs[typ][j].priority {
			return b.subs[typ][i].priority > b.subs[typ][j].priority
		}
		return b.subs[typ][i].seq < b.subs[typ][j].seq
	})

	return sub
}

// SubscribeOnce registers a handler that is removed after its first
// delivered event.
func (b *Bus) SubscribeOnce(typ EventType, handler Handler) *Subscription {
	return b.Subscribe(typ, handler, SubscribeOptions{Once: true})
}

// remove deletes a subscription by type and ID.
func (b *Bus) remove(typ EventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[typ]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[typ] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[typ]) == 0 {
		delete(b.subs, typ)
	}
}

// WaitFor blocks until an event of the given type (matching the optional
// filter) is published, the timeout elapses, or the context is cancelled.
// The one-shot subscription is always released before returning, so a
// timed-out wait never leaks.
func (b *Bus) WaitFor(ctx context.Context, typ EventType, timeout time.Duration, filter Filter) (Event, error) {
	ch := make(chan Event, 1)
	sub := b.Subscribe(typ, func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, SubscribeOptions{Filter: filter, Once: true})
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e := <-ch:
		return e, nil
	case <-timer.C:
		return Event{}, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, typ, timeout)
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// History returns the retained events, oldest first. If a filter is
// given, only matching events are returned.
func (b *Bus) History(filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := make([]Event, 0, len(b.history))
	for _, e := range b.history {
		if filter == nil || filter(e) {
			events = append(events, e)
		}
	}
	return events
}

// Metrics returns per-type publish statistics.
func (b *Bus) Metrics() map[EventType]TypeMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[EventType]TypeMetrics, len(b.counts))
	for typ, c := range b.counts {
		minutes := time.Since(c.firstSeen).Minutes()
		perMinute := float64(c.count)
		if minutes > 1 {
			perMinute = float64(c.count) / minutes
		}
		out[typ] = TypeMetrics{
			Count:     c.count,
			FirstSeen: c.firstSeen,
			PerMinute: perMinute,
		}
	}
	return out
}

// SubscriberCount returns the number of active subscriptions for the
// given type, or across all types when no type is given.
func (b *Bus) SubscriberCount(types ...EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(types) > 0 {
		return len(b.subs[types[0]])
	}
	total := 0
	for _, subs := range b.subs {
		total += len(subs)
	}
	return total
}
