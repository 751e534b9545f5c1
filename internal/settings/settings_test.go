package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/settings"
)

func TestLoad_Defaults(t *testing.T) {
	assert.Equal(t, settings.Defaults(), settings.Load(nil))
	assert.Equal(t, settings.Defaults(), settings.Load(settings.NewMemoryStore(nil)))
}

func TestLoad_ParsesAndClamps(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   settings.Settings
	}{
		{
			name: "all keys",
			values: map[string]string{
				settings.KeyProfile:    "foot-walking",
				settings.KeyAvoidTolls: "true",
				settings.KeySpeechRate: "1.25",
				settings.KeyVolume:     "0.4",
			},
			want: settings.Settings{Profile: routing.ProfileWalking, AvoidTolls: true, SpeechRate: 1.25, SpeechVolume: 0.4},
		},
		{
			name: "out of range speech",
			values: map[string]string{
				settings.KeySpeechRate: "5",
				settings.KeyVolume:     "-1",
			},
			want: settings.Settings{Profile: routing.ProfileDriving, SpeechRate: 2, SpeechVolume: 0},
		},
		{
			name: "garbage falls back per key",
			values: map[string]string{
				settings.KeyProfile:    "   ",
				settings.KeyAvoidTolls: "maybe",
				settings.KeySpeechRate: "fast",
				settings.KeyVolume:     "0.5",
			},
			want: settings.Settings{Profile: routing.ProfileDriving, SpeechRate: 1, SpeechVolume: 0.5},
		},
		{
			name:   "profile alias",
			values: map[string]string{settings.KeyProfile: "bike"},
			want:   settings.Settings{Profile: routing.ProfileCycling, SpeechRate: 1, SpeechVolume: 1},
		},
		{
			name:   "NaN rate",
			values: map[string]string{settings.KeySpeechRate: "NaN"},
			want:   settings.Settings{Profile: routing.ProfileDriving, SpeechRate: 0.5, SpeechVolume: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, settings.Load(settings.NewMemoryStore(tt.values)))
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	store := settings.NewMemoryStore(nil)
	in := settings.Settings{Profile: routing.ProfileCycling, AvoidTolls: true, SpeechRate: 3, SpeechVolume: 0.75}

	settings.Save(store, in)

	got := settings.Load(store)
	assert.Equal(t, routing.ProfileCycling, got.Profile)
	assert.True(t, got.AvoidTolls)
	assert.Equal(t, 2.0, got.SpeechRate, "saved values are clamped")
	assert.Equal(t, 0.75, got.SpeechVolume)
	assert.Equal(t, "cycling-regular", store.Values()[settings.KeyProfile])
}

func TestSettings_Options(t *testing.T) {
	opts := settings.Settings{Profile: routing.ProfileWalking, AvoidTolls: true}.Options()
	assert.Equal(t, routing.Options{Profile: routing.ProfileWalking, AvoidTolls: true}, opts)
}
