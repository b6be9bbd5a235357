package service

import "sync"

// Event types published on the bus.
const (
	EventLoading  = "dataloading"
	EventLoaded   = "dataload"
	EventAlert    = "alert"
	EventRestored = "restored"
	EventStyle    = "style"
	EventRepaint  = "repaint"
)

// Event is a state change of one map session.
type Event struct {
	Session string // session ID
	Type    string // one of the Event* constants
	Key     string // overlay key, style code or preset key
	Message string // user facing text, for alerts
}

// EventBus fans session events out to subscribers. A subscriber sees either
// the events of one session or, with an empty session ID, all of them.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish delivers e without blocking; slow subscribers miss events.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, session := range b.subs {
		if session != "" && session != e.Session {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel receiving the events of session, or
// of every session when session is empty.
func (b *EventBus) Subscribe(session string) chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = session
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
