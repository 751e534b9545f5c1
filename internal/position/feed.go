package position

import (
	"sync"
	"time"
)

type watcher struct {
	onSample func(Sample)
	onError  func(error)
}

// Feed is a push-based Source. Samples and errors pushed into it are
// delivered on the pushing goroutine to every active watcher.
// It also remembers the last valid fix, which callers use as a default origin.
type Feed struct {
	mu       sync.RWMutex
	watchers map[uint64]watcher
	nextID   uint64
	last     Sample
	hasLast  bool
	now      func() time.Time
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		watchers: make(map[uint64]watcher),
		now:      time.Now,
	}
}

// Watch registers a watcher.
func (f *Feed) Watch(onSample func(Sample), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.watchers[id] = watcher{onSample: onSample, onError: onError}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
		})
	}, nil
}

// Push validates s and delivers it. A zero timestamp is replaced by the
// current time.
func (f *Feed) Push(s Sample) error {
	if !s.Coordinate.Valid() {
		return ErrInvalidSample
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = f.now()
	}

	f.mu.Lock()
	f.last, f.hasLast = s, true
	targets := f.snapshot()
	f.mu.Unlock()

	for _, w := range targets {
		if w.onSample != nil {
			w.onSample(s)
		}
	}
	return nil
}

// PushError delivers an acquisition error to every watcher.
func (f *Feed) PushError(err error) {
	f.mu.RLock()
	targets := f.snapshot()
	f.mu.RUnlock()

	for _, w := range targets {
		if w.onError != nil {
			w.onError(err)
		}
	}
}

// LastFix returns the most recent valid sample.
func (f *Feed) LastFix() (Sample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.hasLast
}

// WatcherCount returns the number of active watchers.
func (f *Feed) WatcherCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers)
}

// snapshot copies the watcher set. Callers must hold mu.
func (f *Feed) snapshot() []watcher {
	out := make([]watcher, 0, len(f.watchers))
	for _, w := range f.watchers {
		out = append(out, w)
	}
	return out
}
