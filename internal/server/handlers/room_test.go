package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"maarga/internal/service/engine"
	"maarga/internal/service/hub"
	"maarga/internal/service/registry"
	"maarga/internal/service/session"
	"maarga/internal/service/stats"
	"maarga/internal/service/violation"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	h := hub.New(nil)
	e := engine.New(
		registry.New(registry.Config{}),
		violation.New(violation.Config{}),
		h,
		session.NewManager(h),
		stats.NewTracker(),
		nil,
		engine.Config{},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.Stop(ctx)
	})

	roomHandler := NewRoomHandler(e)
	locationHandler := NewLocationHandler(e, nil)
	emergencyHandler := NewEmergencyHandler(e)

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.CreateRoom)
			r.Post("/{code}/join", roomHandler.JoinRoom)
			r.Post("/{code}/leave", roomHandler.LeaveRoom)
			r.Get("/{code}/members", roomHandler.GetMembers)
			r.Post("/{code}/notify", roomHandler.PostNotification)
		})
		r.Route("/location", func(r chi.Router) {
			r.Post("/", locationHandler.SubmitLocation)
			r.Get("/{code}", locationHandler.GetLatestLocations)
			r.Get("/{code}/history/{participantID}", locationHandler.GetHistory)
		})
		r.Route("/emergency", func(r chi.Router) {
			r.Post("/", emergencyHandler.RaiseEmergency)
			r.Post("/{id}/resolve", emergencyHandler.ResolveEmergency)
		})
	})
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createTestRoom(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms", map[string]interface{}{
		"code":           "RIDE42",
		"destination":    "Nandi Hills",
		"participant_id": "leader-1",
		"name":           "Asha",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRoomEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms", map[string]interface{}{
		"code":           "RIDE42",
		"destination":    "Nandi Hills",
		"participant_id": "leader-1",
		"name":           "Asha",
		"max_members":    5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Code        string `json:"code"`
		LeaderID    string `json:"leader_id"`
		MaxMembers  int    `json:"max_members"`
		MemberCount int    `json:"member_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Code != "RIDE42" || created.MaxMembers != 5 || created.MemberCount != 1 {
		t.Errorf("created room = %+v", created)
	}

	// Duplicate codes conflict.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/rooms", map[string]interface{}{
		"code":           "RIDE42",
		"destination":    "Elsewhere",
		"participant_id": "leader-2",
		"name":           "Bala",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms", map[string]interface{}{
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJoinAndMembersEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms/ride42/join", map[string]interface{}{
		"participant_id": "rider-1",
		"name":           "Bala",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/rooms/RIDE42/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("members status = %d", rec.Code)
	}
	var resp struct {
		Members []struct {
			ParticipantID string `json:"participant_id"`
			IsLeader      bool   `json:"is_leader"`
		} `json:"members"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding members: %v", err)
	}
	if len(resp.Members) != 2 || !resp.Members[0].IsLeader {
		t.Errorf("members = %+v, want leader first of 2", resp.Members)
	}

	// Unknown room maps to 404.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/rooms/NOSUCH/members", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown room status = %d, want 404", rec.Code)
	}
}

func TestLeaveEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms/RIDE42/leave", map[string]interface{}{
		"participant_id": "stranger",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-member leave status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/rooms/RIDE42/leave", map[string]interface{}{
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("leave status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitLocationEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/location", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "leader-1",
		"name":           "Asha",
		"latitude":       12.9716,
		"longitude":      77.5946,
		"speed":          6.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/location/RIDE42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	var resp struct {
		Locations []struct {
			ParticipantID string `json:"participant_id"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding locations: %v", err)
	}
	if len(resp.Locations) != 1 || resp.Locations[0].ParticipantID != "leader-1" {
		t.Errorf("locations = %+v", resp.Locations)
	}
}

func TestSubmitLocationValidation(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	// Missing coordinates.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/location", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing coordinates status = %d, want 400", rec.Code)
	}

	// Out-of-range coordinates.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/location", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "leader-1",
		"latitude":       95.0,
		"longitude":      0.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid coordinate status = %d, want 400", rec.Code)
	}

	// Non-member submissions are forbidden.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/location", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "stranger",
		"latitude":       12.9716,
		"longitude":      77.5946,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-member status = %d, want 403", rec.Code)
	}
}

func TestHistoryEndpointWithoutStore(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/location/RIDE42/history/leader-1", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("history status without store = %d, want 501", rec.Code)
	}
}

func TestEmergencyEndpoints(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/emergency", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "leader-1",
		"name":           "Asha",
		"kind":           "breakdown",
		"latitude":       12.9716,
		"longitude":      77.5946,
		"description":    "flat tyre",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("raise status = %d, body %s", rec.Code, rec.Body.String())
	}

	var raised struct {
		ID     string `json:"id"`
		Kind   string `json:"kind"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raised); err != nil {
		t.Fatalf("decoding alert: %v", err)
	}
	if raised.ID == "" || raised.Kind != "breakdown" || raised.Status != "active" {
		t.Errorf("raised alert = %+v", raised)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/emergency/"+raised.ID+"/resolve", map[string]interface{}{
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Double resolution conflicts.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/emergency/"+raised.ID+"/resolve", map[string]interface{}{
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("double resolve status = %d, want 409", rec.Code)
	}

	// Unknown alert kinds are client errors.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/emergency", map[string]interface{}{
		"room_code":      "RIDE42",
		"participant_id": "leader-1",
		"name":           "Asha",
		"kind":           "sos",
		"latitude":       12.9716,
		"longitude":      77.5946,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", rec.Code)
	}

	// Unknown alerts map to 404.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/emergency/no-such-id/resolve", map[string]interface{}{
		"participant_id": "leader-1",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown alert status = %d, want 404", rec.Code)
	}
}

func TestNotifyEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createTestRoom(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/rooms/RIDE42/notify", map[string]interface{}{
		"message": "regroup at the checkpoint",
		"sender":  "Asha",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("notify status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/rooms/RIDE42/notify", map[string]interface{}{
		"sender": "Asha",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}
}
