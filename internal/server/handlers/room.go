package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"maarga/internal/domain/alert"
	"maarga/internal/domain/room"
	"maarga/internal/service/engine"
)

// RoomHandler handles room-related HTTP requests
type RoomHandler struct {
	engine *engine.Engine
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(e *engine.Engine) *RoomHandler {
	return &RoomHandler{
		engine: e,
	}
}

// CreateRoom creates a new room with the requester as leader
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	type createRoomRequest struct {
		Code          string `json:"code"`
		Destination   string `json:"destination"`
		ParticipantID string `json:"participant_id"`
		Name          string `json:"name"`
		MaxMembers    int    `json:"max_members"`
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Destination == "" || req.ParticipantID == "" || req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "destination, participant_id and name are required", nil)
		return
	}

	rm, err := h.engine.CreateRoom(req.Code, req.Destination, req.ParticipantID, req.Name, req.MaxMembers)
	if err != nil {
		respondWithDomainError(w, "Failed to create room", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, rm)
}

// JoinRoom adds the requester to a room
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	type joinRoomRequest struct {
		ParticipantID string `json:"participant_id"`
		Name          string `json:"name"`
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ParticipantID == "" || req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "participant_id and name are required", nil)
		return
	}

	rm, membership, err := h.engine.JoinRoom(code, req.ParticipantID, req.Name)
	if err != nil {
		respondWithDomainError(w, "Failed to join room", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"room":       rm,
		"membership": membership,
	})
}

// LeaveRoom removes the requester from a room
func (h *RoomHandler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	type leaveRoomRequest struct {
		ParticipantID string `json:"participant_id"`
	}

	var req leaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.engine.LeaveRoom(code, req.ParticipantID); err != nil {
		respondWithDomainError(w, "Failed to leave room", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// GetMembers lists a room's active members, leader first
func (h *RoomHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	members, err := h.engine.ListMembers(code)
	if err != nil {
		respondWithDomainError(w, "Failed to get room members", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// PostNotification fans a free-form message out to a room
func (h *RoomHandler) PostNotification(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	type notifyRequest struct {
		Message string `json:"message"`
		Sender  string `json:"sender"`
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	if err := h.engine.PostNotification(code, req.Message, req.Sender); err != nil {
		respondWithDomainError(w, "Failed to post notification", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["detail"] = err.Error()
	}

	jsonResponse, _ := json.Marshal(response)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(jsonResponse)
}

// respondWithDomainError maps domain errors onto HTTP status codes.
func respondWithDomainError(w http.ResponseWriter, message string, err error) {
	respondWithError(w, statusForError(err), message, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, alert.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrDuplicateRoomCode),
		errors.Is(err, room.ErrRoomFull),
		errors.Is(err, alert.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, room.ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, room.ErrInvalidCoordinate),
		errors.Is(err, alert.ErrInvalidKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
