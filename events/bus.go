// Package events adapts go-ethereum's event.Feed into the fire-and-forget,
// never-blocking, overflow-dropping EventBus contract the peer runtime
// needs: Emit must never fail and must never stall its caller.
package events

import (
	"github.com/ethereum/go-ethereum/event"
)

// DefaultMaxInFlight bounds how many Emit calls may be delivering
// concurrently before further events are dropped outright.
const DefaultMaxInFlight = 256

// Bus multicasts events to any number of subscribers using event.Feed for
// subscription bookkeeping and delivery. Feed.Send blocks until every
// subscriber has room, so each Send runs on its own goroutine bounded by
// a semaphore; once maxInFlight sends are outstanding, further Emit calls
// drop the event immediately instead of queuing unbounded work.
type Bus struct {
	feed event.Feed
	sem  chan struct{}
}

// New returns an empty Bus that allows at most maxInFlight concurrent
// deliveries before dropping.
func New(maxInFlight int) *Bus {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Bus{sem: make(chan struct{}, maxInFlight)}
}

// Subscribe registers ch to receive every event emitted afterwards. The
// returned Subscription's Unsubscribe must be called to stop delivery.
func (b *Bus) Subscribe(ch chan<- any) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Emit forwards each event to every current subscriber without blocking
// the caller. An event is dropped outright if the bus already has
// maxInFlight deliveries in progress: State.Emit must never block or
// fail.
func (b *Bus) Emit(evs ...any) {
	for _, ev := range evs {
		select {
		case b.sem <- struct{}{}:
			go func(ev any) {
				defer func() { <-b.sem }()
				b.feed.Send(ev)
			}(ev)
		default:
			// bus saturated: drop rather than block or queue unbounded work
		}
	}
}
