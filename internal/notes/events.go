package notes

import (
	"sync"
	"time"
)

// EventType names what changed in the workspace.
type EventType string

const (
	EventChanged  EventType = "changed"
	EventReloaded EventType = "reloaded"
	EventSynced   EventType = "synced"
	EventPulled   EventType = "pulled"
)

// Event is sent to subscribers after the tree or queue changes.
type Event struct {
	Type    EventType `json:"type"`
	Pending int       `json:"pending"`
	At      time.Time `json:"at"`
}

// subscriberBuffer is how many events a slow subscriber may fall behind
// before events are dropped for it.
const subscriberBuffer = 16

type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan Event]struct{})
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks: a full subscriber misses the event.
func (b *broadcaster) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of workspace events and a function that
// ends the subscription and closes the channel.
func (w *Workspace) Subscribe() (<-chan Event, func()) {
	return w.events.subscribe()
}

func (w *Workspace) notify(t EventType) {
	n, err := w.queue.Len()
	if err != nil {
		n = -1
	}

	w.events.publish(Event{Type: t, Pending: n, At: w.now()})
}
