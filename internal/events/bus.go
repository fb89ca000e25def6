package events

import (
	"sync"
	"time"
)

// Event enumerates the signal lifecycle topics.
type Event string

const (
	EventSignalReceived  Event = "signal.received"
	EventOrderPlaced     Event = "order.placed"
	EventOrderRejected   Event = "order.rejected"
	EventExecutionFailed Event = "execution.failed"
	EventPositionClosed  Event = "position.closed"
	EventTradeClosed     Event = "trade.closed"
	EventRiskAlert       Event = "risk.alert"
)

// Envelope is what subscribers receive: the topic, the payload and the
// publish time, ready for JSON streaming.
type Envelope struct {
	Event   Event     `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

type subscriber struct {
	ch  chan Envelope
	all bool
}

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]*subscriber
	any  []*subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]*subscriber)}
}

// Subscribe registers a listener for one event and returns the channel and
// an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Envelope, func()) {
	sub := &subscriber{ch: make(chan Envelope, buffer)}

	b.mu.Lock()
	b.subs[e] = append(b.subs[e], sub)
	b.mu.Unlock()

	return sub.ch, func() { b.remove(e, sub) }
}

// SubscribeAll registers a listener for every event. Used by the dashboard
// websocket stream.
func (b *Bus) SubscribeAll(buffer int) (<-chan Envelope, func()) {
	sub := &subscriber{ch: make(chan Envelope, buffer), all: true}

	b.mu.Lock()
	b.any = append(b.any, sub)
	b.mu.Unlock()

	return sub.ch, func() { b.remove("", sub) }
}

func (b *Bus) remove(e Event, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[e]
	if sub.all {
		list = b.any
	}
	for i, s := range list {
		if s == sub {
			close(s.ch)
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if sub.all {
		b.any = list
	} else {
		b.subs[e] = list
	}
}

// Subscribers reports how many listeners are currently registered.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.any)
	for _, list := range b.subs {
		n += len(list)
	}
	return n
}

// Publish fans the payload out to subscribers without blocking; slow
// subscribers drop messages.
func (b *Bus) Publish(e Event, payload any) {
	env := Envelope{Event: e, Payload: payload, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[e] {
		select {
		case sub.ch <- env:
		default:
		}
	}
	for _, sub := range b.any {
		select {
		case sub.ch <- env:
		default:
		}
	}
}
