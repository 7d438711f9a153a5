package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"maarga/internal/domain/geo"
	"maarga/internal/domain/room"
	"maarga/internal/service/engine"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketUpgrader is used to upgrade HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, this should be more restrictive
		return true
	},
}

// wsClient is a connected WebSocket subscriber. It satisfies hub.Conn: the
// hub hands it encoded events, the pumps move them to the peer.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	engine *engine.Engine

	closeOnce sync.Once
}

// ID returns the connection's identifier.
func (c *wsClient) ID() string {
	return c.id
}

// Send queues an event for delivery. It never blocks; a subscriber that
// cannot keep up, or whose channel was already closed, is reported as failed
// so the hub drops it.
func (c *wsClient) Send(data []byte) (err error) {
	defer func() {
		// The send channel may be closed concurrently by the close path.
		if recover() != nil {
			err = errors.New("connection closed")
		}
	}()

	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// RoomWebSocketHandler handles WebSocket connections for real-time room
// interaction. The connection is subscribed to the room's event stream and
// may push joinRoom / locationUpdate / leaveRoom / notification operations.
func RoomWebSocketHandler(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomCode := chi.URLParam(r, "code")
		if roomCode == "" {
			http.Error(w, "Missing room code", http.StatusBadRequest)
			return
		}

		participantID := r.URL.Query().Get("participant_id")
		if participantID == "" {
			http.Error(w, "Missing participant ID", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade to WebSocket: %v", err)
			return
		}

		client := &wsClient{
			id:     uuid.New().String(),
			conn:   conn,
			send:   make(chan []byte, 256),
			engine: e,
		}

		go client.writePump()
		go client.readPump(roomCode, participantID, name)

		e.Subscribe(client, roomCode, participantID, name)

		log.Printf("New WebSocket connection for room %s from participant %s", roomCode, participantID)
	}
}

// inboundMessage is the envelope clients push over the socket.
type inboundMessage struct {
	Type          string   `json:"type"`
	RoomCode      string   `json:"room_code"`
	ParticipantID string   `json:"participant_id"`
	Name          string   `json:"name"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Speed         *float64 `json:"speed"`
	Heading       *float64 `json:"heading"`
	Accuracy      *float64 `json:"accuracy"`
	Message       string   `json:"message"`
}

// readPump pumps messages from the WebSocket connection into the engine
func (c *wsClient) readPump(roomCode, participantID, name string) {
	config := DefaultWebSocketConfig()

	defer func() {
		c.engine.Disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.processIncomingMessage(message, roomCode, participantID, name)
	}
}

// writePump pumps events from the hub to the WebSocket connection
func (c *wsClient) writePump() {
	config := DefaultWebSocketConfig()
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued events to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processIncomingMessage maps an inbound WebSocket message onto an engine
// operation. Operation failures are reported back on this connection only.
func (c *wsClient) processIncomingMessage(message []byte, roomCode, participantID, name string) {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to parse WebSocket message: %v", err)
		return
	}

	if msg.RoomCode == "" {
		msg.RoomCode = roomCode
	}
	if msg.ParticipantID == "" {
		msg.ParticipantID = participantID
	}
	if msg.Name == "" {
		msg.Name = name
	}

	switch msg.Type {
	case "joinRoom":
		_, _, err := c.engine.JoinRoom(msg.RoomCode, msg.ParticipantID, msg.Name)
		c.reportIfError("joinRoom", err)

	case "locationUpdate":
		if msg.Latitude == nil || msg.Longitude == nil {
			c.reportIfError("locationUpdate", errors.New("latitude and longitude are required"))
			return
		}
		err := c.engine.SubmitLocation(room.LocationSample{
			ParticipantID: msg.ParticipantID,
			Name:          msg.Name,
			RoomCode:      msg.RoomCode,
			Coordinate:    geo.Coordinate{Latitude: *msg.Latitude, Longitude: *msg.Longitude},
			Speed:         msg.Speed,
			Heading:       msg.Heading,
			Accuracy:      msg.Accuracy,
			Timestamp:     time.Now().UTC(),
		}, c)
		c.reportIfError("locationUpdate", err)

	case "leaveRoom":
		c.reportIfError("leaveRoom", c.engine.LeaveRoom(msg.RoomCode, msg.ParticipantID))

	case "notification":
		c.reportIfError("notification", c.engine.PostNotification(msg.RoomCode, msg.Message, msg.Name))

	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

func (c *wsClient) reportIfError(op string, err error) {
	if err == nil {
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"type":      "error",
		"operation": op,
		"error":     err.Error(),
	})
	if sendErr := c.Send(payload); sendErr != nil {
		log.Printf("Failed to report %s error to client %s: %v", op, c.id, sendErr)
	}
}

// close tears the connection down once, regardless of which pump failed.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		close(c.send)
	})
}
