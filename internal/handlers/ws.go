package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chepyr/go-task-share/internal/tasks"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// queued messages per connection before it is dropped as too slow
	wsSendBuffer = 32
	wsWriteWait  = 10 * time.Second
)

// WSHub fans task events out to the websocket connections of every user
// who can see the task. Notify never waits on a socket: each connection has
// its own queue drained by a writer goroutine.
type WSHub struct {
	connections map[uuid.UUID]map[*wsClient]bool
	mutex       sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewWSHub() *WSHub {
	return &WSHub{connections: make(map[uuid.UUID]map[*wsClient]bool)}
}

type wsMessage struct {
	Event tasks.EventType `json:"event"`
	Task  taskResponse    `json:"task"`
}

// Notify queues the event for the owner and everyone the task is shared
// with. A connection whose queue is full is dropped.
func (hub *WSHub) Notify(_ context.Context, event tasks.Event) error {
	if event.Task == nil {
		return nil
	}
	message, err := json.Marshal(wsMessage{
		Event: event.Type,
		Task:  taskResponse{Task: event.Task, Status: event.Task.Status()},
	})
	if err != nil {
		return err
	}

	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for _, userID := range event.Recipients() {
		for client := range hub.connections[userID] {
			select {
			case client.send <- message:
			default:
				log.Printf("Dropping slow WebSocket client of %s", userID)
				hub.removeLocked(userID, client)
			}
		}
	}
	return nil
}

func (hub *WSHub) add(userID uuid.UUID, client *wsClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if hub.connections[userID] == nil {
		hub.connections[userID] = make(map[*wsClient]bool)
	}
	hub.connections[userID][client] = true
}

func (hub *WSHub) remove(userID uuid.UUID, client *wsClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.removeLocked(userID, client)
}

// removeLocked closes the client's queue exactly once, when it leaves the
// map. The writer then closes the socket.
func (hub *WSHub) removeLocked(userID uuid.UUID, client *wsClient) {
	conns, ok := hub.connections[userID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(hub.connections, userID)
	}
}

// Connections reports how many sockets are open for the user.
func (hub *WSHub) Connections(userID uuid.UUID) int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.connections[userID])
}

// writeLoop sends queued messages until the queue is closed or a write
// fails or times out.
func (client *wsClient) writeLoop() {
	defer client.conn.Close()
	for message := range client.send {
		if err := client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("Failed to send WebSocket message: %v", err)
			return
		}
	}
	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// checkOrigin allows any origin when AllowedOrigins is empty.
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.AllowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if !identity.Authenticated() {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// keyed by user so reconnects never eat into the login budget
	if h.WSRateLimiter != nil && !h.WSRateLimiter.Allow(identity.ID.String()) {
		log.Printf("WebSocket rate limit exceeded for %s", identity.Username)
		sendError(w, "Too many WebSocket connection attempts", http.StatusTooManyRequests)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:  h.checkOrigin,
		Subprotocols: []string{wsBearerProtocol},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.WSHub.add(identity.ID, client)
	go client.writeLoop()
	log.Printf("WebSocket connected: %s", identity.Username)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("WebSocket closed for %s: %v", identity.Username, err)
			h.WSHub.remove(identity.ID, client)
			return
		}
	}
}

var _ tasks.Notifier = (*WSHub)(nil)
