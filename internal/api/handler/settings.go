package handler

import (
	"net/http"

	"github.com/browsernavi/navi/internal/api/models"
	"github.com/browsernavi/navi/internal/api/response"
	"github.com/browsernavi/navi/internal/routing"
	"github.com/browsernavi/navi/internal/settings"
)

// SettingsStore reads and writes preference values. *settings.MemoryStore
// implements it.
type SettingsStore interface {
	settings.Store
	settings.Writer
}

var profiles = []string{
	string(routing.ProfileDriving),
	string(routing.ProfileCycling),
	string(routing.ProfileWalking),
}

// SettingsHandler handles preference endpoints. Changes apply from the next
// start or reroute.
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings handles GET /v1/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toSettings(settings.Load(h.store)))
}

// UpdateSettings handles PUT /v1/settings.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input models.SettingsUpdate
	if !decode(w, r, &input) {
		return
	}
	if errs := input.Validate(profiles); len(errs) > 0 {
		response.BadRequest(w, r, "invalid settings", errs)
		return
	}

	current := settings.Load(h.store)
	if input.Profile != nil {
		current.Profile = routing.Profile(*input.Profile)
	}
	if input.AvoidTolls != nil {
		current.AvoidTolls = *input.AvoidTolls
	}
	if input.TTSSpeed != nil {
		current.SpeechRate = *input.TTSSpeed
	}
	if input.TTSVolume != nil {
		current.SpeechVolume = *input.TTSVolume
	}
	settings.Save(h.store, current)

	response.JSON(w, r, http.StatusOK, toSettings(settings.Load(h.store)))
}

func toSettings(s settings.Settings) models.Settings {
	return models.Settings{
		Profile:    string(s.Profile),
		AvoidTolls: s.AvoidTolls,
		TTSSpeed:   s.SpeechRate,
		TTSVolume:  s.SpeechVolume,
	}
}
