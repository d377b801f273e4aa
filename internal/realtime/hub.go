// Package realtime pushes version and suggestion events to project watchers
// over WebSocket. A client subscribes to project streams and receives every
// changelog-worthy transition as it happens.
package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/unforkableco/fabrikator/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize    = 1 << 16
	defaultBufferSize = 64
)

// Event is a JSON payload delivered to project watchers.
type Event struct {
	ProjectID string `json:"project_id"`
	Event     string `json:"event"`
	Entity    string `json:"entity,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Event names published by the API layer.
const (
	EventEntityCreated      = "entity.created"
	EventVersionAdded       = "version.added"
	EventVersionValidated   = "version.validated"
	EventSuggestionProposed = "suggestion.proposed"
	EventSuggestionResolved = "suggestion.resolved"
)

type controlMessage struct {
	Action   string   `json:"action"`
	Projects []string `json:"projects"`
}

// Hub fans project events out to connected watchers.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*connection]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		watchers: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the HTTP connection and registers the client on the given
// project streams. Clients can adjust subscriptions with control messages.
func (h *Hub) Serve(userID string, projects []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		hub:      h,
		socket:   conn,
		userID:   userID,
		projects: make(map[string]struct{}),
		send:     make(chan Event, defaultBufferSize),
	}
	h.subscribe(client, projects)

	go client.writeLoop()
	client.readLoop()
}

// Publish delivers an event to everyone watching its project.
func (h *Hub) Publish(event Event) {
	projectID := strings.TrimSpace(event.ProjectID)
	if projectID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.watchers[projectID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn("dropping slow watcher", zap.String("user_id", client.userID))
			go client.close()
		}
	}
}

// WatcherCount reports how many connections watch a project. Used by tests
// and the health endpoint.
func (h *Hub) WatcherCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[projectID])
}

func (h *Hub) subscribe(client *connection, projects []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, projectID := range projects {
		projectID = strings.TrimSpace(projectID)
		if projectID == "" {
			continue
		}
		if h.watchers[projectID] == nil {
			h.watchers[projectID] = make(map[*connection]struct{})
		}
		h.watchers[projectID][client] = struct{}{}
		client.projects[projectID] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, projects []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, projectID := range projects {
		h.dropLocked(client, strings.TrimSpace(projectID))
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for projectID := range client.projects {
		h.dropLocked(client, projectID)
	}
}

func (h *Hub) dropLocked(client *connection, projectID string) {
	watchers, ok := h.watchers[projectID]
	if !ok {
		return
	}
	delete(watchers, client)
	if len(watchers) == 0 {
		delete(h.watchers, projectID)
	}
	delete(client.projects, projectID)
}

type connection struct {
	hub      *Hub
	socket   *websocket.Conn
	userID   string
	projects map[string]struct{}
	send     chan Event
	once     sync.Once
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Projects)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Projects)
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}
