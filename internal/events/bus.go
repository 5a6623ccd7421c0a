package events

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
)

// Subscriber is a registered callback. The bus invokes subscribers in
// registration order and recovers from panics so one bad subscriber
// cannot break others
type Subscriber func(AgentEvent)

type subscription struct {
	id int
	fn Subscriber
}

// Bus is a single-process, synchronous, broadcast event bus.
type Bus struct {
	mu            sync.Mutex
	subs          []subscription
	nextSubID     int
	sequence      atomic.Uint64
	sessionID     string
	streamSink    io.Writer // non-nil enables json-stream (NDJSON) mode
	streamEncoder *json.Encoder
}

func New(sessionID string) *Bus {
	return &Bus{sessionID: sessionID}
}

// EnableNDJSONStream writes every published event as one JSON object per
// line to w
func (b *Bus) EnableNDJSONStream(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamSink = w
	b.streamEncoder = json.NewEncoder(w)
}

// Subscribe registers a callback and returns an unsubscribe handle.
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish assigns a sequence number and timestamp, dispatches to every
// subscriber synchronously in registration order (catching panics), and
// writes to the NDJSON sink if enabled.
func (b *Bus) Publish(typ Type, turnID int, data map[string]any) AgentEvent {
	ev := AgentEvent{
		Seq:       b.sequence.Add(1),
		Type:      typ,
		Timestamp: nowSeconds(),
		SessionID: b.sessionID,
		TurnID:    turnID,
		Data:      data,
	}

	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	encoder := b.streamEncoder
	b.mu.Unlock()

	for _, s := range subs {
		dispatchSafely(s.fn, ev)
	}
	if encoder != nil {
		_ = encoder.Encode(ev)
	}
	return ev
}

func dispatchSafely(fn Subscriber, ev AgentEvent) {
	defer func() {
		_ = recover()
	}()
	fn(ev)
}

// Count returns the number of live subscriptions, for tests.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
