package handler

import (
	"sync"

	"github.com/browsernavi/navi/internal/navigation"
)

const (
	// DefaultNoticeHistory is the number of notices kept for polling clients.
	DefaultNoticeHistory = 50

	subscriberBuffer = 16
)

// Event is one message on the navigation event stream.
type Event struct {
	// Name is "snapshot" or "notice".
	Name string
	Data any
}

// Events fans engine snapshots and notices out to stream subscribers and
// keeps the most recent notices. Wire PublishSnapshot and PublishNotice to
// the engine's OnSnapshot and OnNotice hooks.
type Events struct {
	mu      sync.Mutex
	notices []navigation.Notice
	size    int
	subs    map[chan Event]struct{}
	dropped uint64
}

// NewEvents creates a broadcaster remembering up to history notices
// (DefaultNoticeHistory when zero).
func NewEvents(history int) *Events {
	if history <= 0 {
		history = DefaultNoticeHistory
	}
	return &Events{
		size: history,
		subs: make(map[chan Event]struct{}),
	}
}

// PublishSnapshot forwards s to every subscriber.
func (e *Events) PublishSnapshot(s navigation.Snapshot) {
	e.broadcast(Event{Name: "snapshot", Data: toSnapshot(s)})
}

// PublishNotice records n and forwards it to every subscriber.
func (e *Events) PublishNotice(n navigation.Notice) {
	e.mu.Lock()
	e.notices = append(e.notices, n)
	if over := len(e.notices) - e.size; over > 0 {
		e.notices = append(e.notices[:0:0], e.notices[over:]...)
	}
	e.mu.Unlock()

	e.broadcast(Event{Name: "notice", Data: toNotice(n)})
}

// Notices returns the remembered notices, oldest first.
func (e *Events) Notices() []navigation.Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]navigation.Notice, len(e.notices))
	copy(out, e.notices)
	return out
}

// Subscribe registers a stream subscriber. Events are dropped for a
// subscriber whose buffer is full. The returned function unsubscribes.
func (e *Events) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, ch)
			e.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (e *Events) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Dropped returns the number of events discarded for slow subscribers.
func (e *Events) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Events) broadcast(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped++
		}
	}
}
