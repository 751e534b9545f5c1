package models

import "slices"

// Settings are the user preferences read at every start and reroute.
type Settings struct {
	Profile    string  `json:"profile"`
	AvoidTolls bool    `json:"avoidTolls"`
	TTSSpeed   float64 `json:"ttsSpeed"`
	TTSVolume  float64 `json:"ttsVolume"`
}

// SettingsUpdate is the body of PUT /v1/settings. Omitted fields keep their value.
type SettingsUpdate struct {
	Profile    *string  `json:"profile,omitempty"`
	AvoidTolls *bool    `json:"avoidTolls,omitempty"`
	TTSSpeed   *float64 `json:"ttsSpeed,omitempty"`
	TTSVolume  *float64 `json:"ttsVolume,omitempty"`
}

// Validate validates the settings update. Speech values outside their range
// are rejected rather than clamped so clients learn the bounds.
func (u *SettingsUpdate) Validate(profiles []string) []FieldError {
	var errs []FieldError
	if u.Profile != nil && !slices.Contains(profiles, *u.Profile) {
		errs = append(errs, FieldError{Field: "profile", Message: "unknown profile", Code: "INVALID_VALUE"})
	}
	if u.TTSSpeed != nil && (*u.TTSSpeed < 0.5 || *u.TTSSpeed > 2) {
		errs = append(errs, FieldError{Field: "ttsSpeed", Message: "must be between 0.5 and 2", Code: "OUT_OF_RANGE"})
	}
	if u.TTSVolume != nil && (*u.TTSVolume < 0 || *u.TTSVolume > 1) {
		errs = append(errs, FieldError{Field: "ttsVolume", Message: "must be between 0 and 1", Code: "OUT_OF_RANGE"})
	}
	return errs
}
