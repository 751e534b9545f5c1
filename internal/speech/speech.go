// Package speech provides speakers for headless deployments: one that logs
// every utterance, one that keeps a bounded history, and a fan-out.
package speech

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Speaker renders text audibly.
type Speaker interface {
	Speak(text string)
}

// VoiceSetter is implemented by speakers that accept a speech rate and volume.
type VoiceSetter interface {
	SetVoice(rate, volume float64)
}

// LogSpeaker writes each utterance to a logger.
type LogSpeaker struct {
	logger zerolog.Logger

	mu     sync.Mutex
	rate   float64
	volume float64
}

// NewLogSpeaker creates a speaker that logs at info level.
func NewLogSpeaker(logger zerolog.Logger) *LogSpeaker {
	return &LogSpeaker{logger: logger, rate: 1, volume: 1}
}

// Speak logs text with the current voice settings.
func (s *LogSpeaker) Speak(text string) {
	s.mu.Lock()
	rate, volume := s.rate, s.volume
	s.mu.Unlock()

	s.logger.Info().
		Str("text", text).
		Float64("rate", rate).
		Float64("volume", volume).
		Msg("speak")
}

// SetVoice records the rate and volume reported with later utterances.
func (s *LogSpeaker) SetVoice(rate, volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate, s.volume = rate, volume
}

// Utterance is one recorded Speak call.
type Utterance struct {
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	Rate   float64   `json:"rate"`
	Volume float64   `json:"volume"`
}

// DefaultRecorderSize is the history kept when NewRecorder is given zero.
const DefaultRecorderSize = 100

// Recorder keeps the most recent utterances in memory.
type Recorder struct {
	mu     sync.Mutex
	size   int
	items  []Utterance
	rate   float64
	volume float64
	now    func() time.Time
}

// NewRecorder creates a recorder that keeps at most size utterances.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{size: size, rate: 1, volume: 1, now: time.Now}
}

// Speak appends text to the history, dropping the oldest entry when full.
func (r *Recorder) Speak(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, Utterance{Text: text, At: r.now(), Rate: r.rate, Volume: r.volume})
	if over := len(r.items) - r.size; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
}

// SetVoice records the rate and volume attached to later utterances.
func (r *Recorder) SetVoice(rate, volume float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate, r.volume = rate, volume
}

// History returns a copy of the recorded utterances, oldest first.
func (r *Recorder) History() []Utterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Utterance(nil), r.items...)
}

// Texts returns the recorded texts, oldest first.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, u := range r.items {
		out[i] = u.Text
	}
	return out
}

// Multi forwards every call to each speaker in order.
type Multi []Speaker

// Speak forwards text to every speaker.
func (m Multi) Speak(text string) {
	for _, s := range m {
		s.Speak(text)
	}
}

// SetVoice forwards the voice to every speaker that accepts one.
func (m Multi) SetVoice(rate, volume float64) {
	for _, s := range m {
		if v, ok := s.(VoiceSetter); ok {
			v.SetVoice(rate, volume)
		}
	}
}
