package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
	"maarga/internal/service/engine"
)

// LocationHistory is the read side of the location mirror, used for the
// history endpoint. Live positions come from the registry, not from here.
type LocationHistory interface {
	History(ctx context.Context, roomCode, participantID string, limit int) ([]room.LocationSample, error)
}

// LocationHandler handles location-related HTTP requests
type LocationHandler struct {
	engine  *engine.Engine
	history LocationHistory
}

// NewLocationHandler creates a new location handler. history may be nil
// when no durable mirror is configured.
func NewLocationHandler(e *engine.Engine, history LocationHistory) *LocationHandler {
	return &LocationHandler{
		engine:  e,
		history: history,
	}
}

// SubmitLocation ingests a location sample
func (h *LocationHandler) SubmitLocation(w http.ResponseWriter, r *http.Request) {
	type submitRequest struct {
		RoomCode      string   `json:"room_code"`
		ParticipantID string   `json:"participant_id"`
		Name          string   `json:"name"`
		Latitude      *float64 `json:"latitude"`
		Longitude     *float64 `json:"longitude"`
		Speed         *float64 `json:"speed"`
		Heading       *float64 `json:"heading"`
		Accuracy      *float64 `json:"accuracy"`
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.RoomCode == "" || req.ParticipantID == "" || req.Latitude == nil || req.Longitude == nil {
		respondWithError(w, http.StatusBadRequest, "room_code, participant_id, latitude and longitude are required", nil)
		return
	}

	sample := room.LocationSample{
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		RoomCode:      req.RoomCode,
		Coordinate:    geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Speed:         req.Speed,
		Heading:       req.Heading,
		Accuracy:      req.Accuracy,
		Timestamp:     time.Now().UTC(),
	}

	if err := h.engine.SubmitLocation(sample, nil); err != nil {
		respondWithDomainError(w, "Failed to submit location", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLatestLocations returns the latest known location per room member,
// served from the in-memory registry.
func (h *LocationHandler) GetLatestLocations(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	members, err := h.engine.ListMembers(code)
	if err != nil {
		respondWithDomainError(w, "Failed to get locations", err)
		return
	}

	locations := make([]room.LocationSample, 0, len(members))
	for _, m := range members {
		if m.LastLocation != nil {
			locations = append(locations, *m.LastLocation)
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

// GetHistory returns recent mirrored samples for one member
func (h *LocationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondWithError(w, http.StatusNotImplemented, "Location history is not configured", nil)
		return
	}

	code := chi.URLParam(r, "code")
	participantID := chi.URLParam(r, "participantID")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	samples, err := h.history.History(r.Context(), code, participantID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get location history", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"locations": samples})
}
