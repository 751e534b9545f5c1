// Package settings reads user preferences that shape routing and speech from
// a key-value store.
package settings

import (
	"math"
	"strconv"
	"strings"

	"github.com/browsernavi/navi/internal/routing"
)

// Setting keys.
const (
	KeyProfile    = "profile"
	KeyAvoidTolls = "avoidTolls"
	KeySpeechRate = "ttsSpeed"
	KeyVolume     = "ttsVolume"
)

// Speech bounds.
const (
	MinSpeechRate = 0.5
	MaxSpeechRate = 2.0
	MinVolume     = 0.0
	MaxVolume     = 1.0
)

// Store reads raw setting values.
type Store interface {
	Get(key string) (string, bool)
}

// Writer stores raw setting values.
type Writer interface {
	Set(key, value string)
}

// Settings are the preferences read at the start of every navigation and reroute.
type Settings struct {
	Profile      routing.Profile
	AvoidTolls   bool
	SpeechRate   float64
	SpeechVolume float64
}

// Defaults returns the settings used when a key is missing or unparseable.
func Defaults() Settings {
	return Settings{
		Profile:      routing.ProfileDriving,
		AvoidTolls:   false,
		SpeechRate:   1,
		SpeechVolume: 1,
	}
}

// Load reads settings from store, falling back to defaults per key and
// clamping speech values into range. A nil store yields the defaults.
func Load(store Store) Settings {
	s := Defaults()
	if store == nil {
		return s
	}

	if v, ok := store.Get(KeyProfile); ok && strings.TrimSpace(v) != "" {
		s.Profile = routing.ParseProfile(strings.TrimSpace(v))
	}
	if v, ok := store.Get(KeyAvoidTolls); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			s.AvoidTolls = b
		}
	}
	if v, ok := store.Get(KeySpeechRate); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			s.SpeechRate = f
		}
	}
	if v, ok := store.Get(KeyVolume); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			s.SpeechVolume = f
		}
	}

	return s.Clamped()
}

// Clamped returns s with speech values forced into their valid ranges.
func (s Settings) Clamped() Settings {
	s.SpeechRate = clamp(s.SpeechRate, MinSpeechRate, MaxSpeechRate)
	s.SpeechVolume = clamp(s.SpeechVolume, MinVolume, MaxVolume)
	if s.Profile == "" {
		s.Profile = routing.ProfileDriving
	}
	return s
}

// Options returns the routing options these settings select.
func (s Settings) Options() routing.Options {
	return routing.Options{
		Profile:    s.Profile,
		AvoidTolls: s.AvoidTolls,
	}
}

// Save writes s to w after clamping.
func Save(w Writer, s Settings) {
	s = s.Clamped()
	w.Set(KeyProfile, string(s.Profile))
	w.Set(KeyAvoidTolls, strconv.FormatBool(s.AvoidTolls))
	w.Set(KeySpeechRate, strconv.FormatFloat(s.SpeechRate, 'f', -1, 64))
	w.Set(KeyVolume, strconv.FormatFloat(s.SpeechVolume, 'f', -1, 64))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
