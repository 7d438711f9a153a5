package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"maarga/internal/domain/alert"
	"maarga/internal/domain/geo"
	"maarga/internal/service/engine"
)

// EmergencyHandler handles emergency alert HTTP requests
type EmergencyHandler struct {
	engine *engine.Engine
}

// NewEmergencyHandler creates a new emergency handler
func NewEmergencyHandler(e *engine.Engine) *EmergencyHandler {
	return &EmergencyHandler{
		engine: e,
	}
}

// RaiseEmergency creates an emergency alert and broadcasts it to the room
func (h *EmergencyHandler) RaiseEmergency(w http.ResponseWriter, r *http.Request) {
	type raiseRequest struct {
		RoomCode      string   `json:"room_code"`
		ParticipantID string   `json:"participant_id"`
		Name          string   `json:"name"`
		Kind          string   `json:"kind"`
		Latitude      *float64 `json:"latitude"`
		Longitude     *float64 `json:"longitude"`
		Description   string   `json:"description"`
	}

	var req raiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.RoomCode == "" || req.ParticipantID == "" || req.Latitude == nil || req.Longitude == nil {
		respondWithError(w, http.StatusBadRequest, "room_code, participant_id, latitude and longitude are required", nil)
		return
	}

	a, err := h.engine.RaiseEmergency(
		req.RoomCode,
		req.ParticipantID,
		req.Name,
		alert.Kind(req.Kind),
		geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		req.Description,
	)
	if err != nil {
		respondWithDomainError(w, "Failed to raise emergency", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, a)
}

// ResolveEmergency marks an active alert resolved
func (h *EmergencyHandler) ResolveEmergency(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	type resolveRequest struct {
		ParticipantID string `json:"participant_id"`
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := h.engine.ResolveEmergency(alertID, req.ParticipantID)
	if err != nil {
		respondWithDomainError(w, "Failed to resolve emergency", err)
		return
	}

	respondWithJSON(w, http.StatusOK, a)
}
