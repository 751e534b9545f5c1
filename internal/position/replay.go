package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyTrack indicates a replay without any samples.
var ErrEmptyTrack = errors.New("replay track is empty")

// ErrReplayRunning indicates Watch was called while a replay is in progress.
var ErrReplayRunning = errors.New("replay already running")

// DefaultReplayInterval is the delay between replayed samples.
const DefaultReplayInterval = time.Second

// ReplayConfig holds configuration for a replay source.
type ReplayConfig struct {
	// Track is the sequence of samples to replay (required).
	Track []Sample

	// Interval is the delay between samples (default: 1 second).
	Interval time.Duration

	// Logger for replay progress.
	Logger zerolog.Logger
}

// Replay is a Source that plays back a recorded track on its own goroutine.
// Each sample is stamped with the time it is delivered.
type Replay struct {
	track    []Sample
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewReplay creates a replay source.
func NewReplay(cfg ReplayConfig) *Replay {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultReplayInterval
	}

	done := make(chan struct{})
	close(done)

	return &Replay{
		track:    cfg.Track,
		interval: interval,
		logger:   cfg.Logger,
		now:      time.Now,
		done:     done,
	}
}

// Watch starts playing the track from the beginning.
func (r *Replay) Watch(onSample func(Sample), onError func(error)) (func(), error) {
	if len(r.track) == 0 {
		return nil, ErrEmptyTrack
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrReplayRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.done = make(chan struct{})
	go r.run(ctx, r.done, onSample)

	return cancel, nil
}

// Done returns a channel closed when the most recent replay has ended,
// either because the track ran out or because it was stopped.
func (r *Replay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Len returns the number of samples in the track.
func (r *Replay) Len() int {
	return len(r.track)
}

func (r *Replay) run(ctx context.Context, done chan struct{}, onSample func(Sample)) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for i, s := range r.track {
		if ctx.Err() != nil {
			r.logger.Debug().Int("delivered", i).Msg("replay stopped")
			return
		}

		s.Timestamp = r.now()
		if onSample != nil {
			onSample(s)
		}

		if i == len(r.track)-1 {
			break
		}
		select {
		case <-ctx.Done():
			r.logger.Debug().Int("delivered", i+1).Msg("replay stopped")
			return
		case <-ticker.C:
		}
	}

	r.logger.Debug().Int("delivered", len(r.track)).Msg("replay finished")
}
