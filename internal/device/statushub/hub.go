// Package statushub exposes the device's sync status to the local UI
// layer: a websocket hub broadcasting sync events and a JSON snapshot
// endpoint. Connections are only accepted from localhost.
package statushub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/device/syncer"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/logging"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/models"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		host := r.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		return host == "localhost" || host == "127.0.0.1"
	},
}

// Envelope wraps every websocket message.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// client is one connected UI consumer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains connected clients and broadcasts sync events.
type Hub struct {
	statusFn   func() models.SyncStatus
	clients    map[string]*client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// New creates a Hub. statusFn supplies the current status snapshot for
// the /status endpoint and for newly connecting clients.
func New(statusFn func() models.SyncStatus) *Hub {
	h := &Hub{
		statusFn:   statusFn,
		clients:    make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	go h.run()
	return h
}

// run manages client connections and broadcasts.
func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			logging.Debug("Status client connected", map[string]interface{}{"client_id": c.id})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Client send buffer is full, drop the connection
					close(c.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an envelope to all connected clients.
func (h *Hub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal status envelope", err)
		return
	}

	h.broadcast <- payload
}

// OnSyncEvent adapts the hub to the drain coordinator's subscriber
// callback. Register with syncer.Subscribe(hub.OnSyncEvent).
func (h *Hub) OnSyncEvent(ev syncer.Event) {
	data := map[string]interface{}{
		"pending_count": ev.Status.PendingCount,
		"is_syncing":    ev.Status.IsSyncing,
	}
	if ev.Status.LastSyncAt != nil {
		data["last_sync_at"] = *ev.Status.LastSyncAt
	}
	if ev.Error != "" {
		data["error"] = ev.Error
	}
	if ev.MutationID != "" {
		data["mutation_id"] = string(ev.MutationID)
	}
	h.Broadcast(ev.Type, data)
}

// ServeWS handles GET /ws: upgrades the connection and streams events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Websocket upgrade failed", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register <- c

	go c.writeLoop()
	go c.readLoop()
}

// ServeStatus handles GET /status: returns the current status snapshot.
func (h *Hub) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.statusFn())
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/status", h.ServeStatus)
	return mux
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readLoop drains inbound frames so pings and close frames are
// processed; the hub is broadcast-only.
func (c *client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
