package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

const (
	hubWriteWait      = 10 * time.Second
	hubPongWait       = 90 * time.Second
	hubSendBufferSize = 64
)

// Hub fans real-time events out to every connected websocket client. Each
// outbound frame is an envelope {"op","d","seq"} with a hub-wide monotonic
// sequence number, so a client can detect gaps after a reconnect.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	seq     int64
}

// hubClient is one connected websocket consumer. A dedicated write pump
// drains the send channel; a full channel means the client stopped reading
// and is disconnected.
type hubClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*hubClient]struct{}),
	}
}

// HandleConnect upgrades an HTTP request to a websocket, registers the
// client, and sends the connected event with a server-assigned connection id.
func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	client := &hubClient{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, hubSendBufferSize),
	}
	h.register(client)

	go client.writePump()
	go client.readPump()

	h.sendTo(client, domain.OpConnected, map[string]any{
		"user":          domain.User{ID: userID},
		"connection_id": uuid.NewString(),
		"created_at":    time.Now().UTC(),
	})
}

// Broadcast stamps data into an envelope with the next sequence number and
// queues it to every connected client.
func (h *Hub) Broadcast(op string, data any) {
	frame, ok := h.encode(op, data)
	if !ok {
		return
	}
	wsEventsSent.WithLabelValues(op).Inc()

	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// Slow consumer: closing the channel terminates its write pump.
			delete(h.clients, client)
			close(client.send)
			wsConnections.Dec()
			h.logger.Warn().Str("user_id", client.userID).Msg("dropping slow websocket client")
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(client *hubClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	wsConnections.Inc()
	h.logger.Debug().Str("user_id", client.userID).Msg("client connected")
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		wsConnections.Dec()
	}
	h.mu.Unlock()
	h.logger.Debug().Str("user_id", client.userID).Msg("client disconnected")
}

// sendTo queues one event to a single client.
func (h *Hub) sendTo(client *hubClient, op string, data any) {
	frame, ok := h.encode(op, data)
	if !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		h.unregister(client)
	}
}

// encode wraps data in an envelope with the next sequence number.
func (h *Hub) encode(op string, data any) ([]byte, bool) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error().Err(err).Str("op", op).Msg("encoding event payload failed")
		return nil, false
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	frame, err := json.Marshal(domain.Envelope{Op: op, Data: payload, Seq: seq})
	if err != nil {
		h.logger.Error().Err(err).Str("op", op).Msg("encoding envelope failed")
		return nil, false
	}
	return frame, true
}

// writePump drains the send channel onto the connection.
func (c *hubClient) writePump() {
	defer c.conn.Close()
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(hubWriteWait))
}

// readPump consumes inbound frames (the SDK only sends pings) and detects
// the close.
func (c *hubClient) readPump() {
	defer c.hub.unregister(c)
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(hubWriteWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
