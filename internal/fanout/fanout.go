// Package fanout implements the per-match broadcast channel. Every
// connection handler attached to a match subscribes here; the sweeper and
// message dispatch publish into it.
package fanout

import (
	"sync"

	"github.com/battlecp/battlecp-backend/internal/protocol"
)

// Event is what travels the channel: either a payload-free Tick, which asks
// each subscriber to push its own personalized state snapshot, or a
// pre-built Broadcast relayed verbatim.
type Event interface{ isEvent() }

type Tick struct{}

type Broadcast struct {
	Msg protocol.ServerMessage
}

func (Tick) isEvent()      {}
func (Broadcast) isEvent() {}

// subscriberBuffer bounds each subscriber's backlog. A subscriber that falls
// further behind loses events (lag-skip) but keeps its subscription.
const subscriberBuffer = 16

type Fanout struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

func New() *Fanout {
	return &Fanout{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a new receiver and returns its channel plus a cancel
// func. The channel is closed when the subscriber cancels or the fanout
// shuts down; receivers treat a closed channel as "match gone".
func (f *Fanout) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber without blocking. Subscribers with
// a full buffer miss this event; the number of such drops is returned.
func (f *Fanout) Publish(ev Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0
	}
	dropped := 0
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Close tears the channel down, waking every subscriber with a closed
// channel. Called exactly once, when the match is removed from the registry.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

func (f *Fanout) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
