package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const routingKey = "ws_events.notifications"

// Publisher receives connection lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// client pairs a connection with a lock so pushes from several goroutines do
// not interleave frames.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps one room per user holding that user's notification sockets.
type Hub struct {
	rooms     map[int64]map[*websocket.Conn]*client
	publisher Publisher
	mu        sync.RWMutex
}

// NewHub creates an empty hub. publisher may be nil.
func NewHub(publisher Publisher) *Hub {
	return &Hub{
		rooms:     make(map[int64]map[*websocket.Conn]*client),
		publisher: publisher,
	}
}

// AddClient registers a connection in the user's room.
func (h *Hub) AddClient(userID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[*websocket.Conn]*client)
	}
	h.rooms[userID][conn] = &client{conn: conn, info: info}
}

// RemoveClient drops a connection, deleting the room once empty.
func (h *Hub) RemoveClient(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, userID)
		}
	}
}

// Connections reports how many sockets the user has open.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// PushNotification sends a committed notification to every socket the user
// has open. Failed sockets are closed and removed.
func (h *Hub) PushNotification(userID int64, n models.Notification) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.rooms[userID]))
	for _, c := range h.rooms[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	event := models.NotificationEvent{Type: "notification", Notification: &n}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			log.Printf("websocket write error: user_id=%d err=%v", userID, err)
			c.conn.Close()
			h.RemoveClient(userID, c.conn)
			h.publishEvent(context.Background(), c.info, "ws_error", err.Error())
		}
	}
	observability.IncWSEvent("push")
}

func (h *Hub) publishEvent(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	if h.publisher == nil {
		return
	}
	envelope := observability.NewEnvelope(ctx, "ws_events", event, info.payload(event, reason))
	if info.RequestID != "" && envelope.RequestID == "" {
		envelope.RequestID = info.RequestID
	}
	if err := h.publisher.Publish(ctx, routingKey, envelope); err != nil {
		observability.IncPublishError("ws_events")
		log.Printf("ws event publish failed: event=%s err=%v", event, err)
	}
}
