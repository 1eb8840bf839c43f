package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/syntrixbase/concierge/internal/realtime"
)

// Hub maintains the set of active connections and their channel memberships,
// and fans notifications out to the connections bound to a channel. It is
// the connection-layer authority on liveness: a connection is alive exactly
// while it is registered here.
type Hub struct {
	mu sync.RWMutex

	// clients: connectionID -> client
	clients map[string]*Client

	// channels: channelID -> connectionID set
	channels map[string]map[string]struct{}

	// channelRooms: connectionID -> channelID -> roomID, so a room
	// unsubscribe can drop every channel membership it implies.
	channelRooms map[string]map[string]string

	logger *slog.Logger
}

// Compile-time check.
var _ realtime.ConnectionChecker = (*Hub)(nil)

// NewHub creates an empty connection hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[string]struct{}),
		channelRooms: make(map[string]map[string]string),
		logger:       logger.With("component", "hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("Connection registered", "connectionId", c.id)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		for channelID := range h.channelRooms[c.id] {
			h.dropMembership(channelID, c.id)
		}
		delete(h.channelRooms, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("Connection unregistered", "connectionId", c.id)
}

// JoinChannel binds a connection to a channel of a room.
func (h *Hub) JoinChannel(channelID, roomID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connectionID]; !ok {
		return
	}
	members, ok := h.channels[channelID]
	if !ok {
		members = make(map[string]struct{})
		h.channels[channelID] = members
	}
	members[connectionID] = struct{}{}

	rooms, ok := h.channelRooms[connectionID]
	if !ok {
		rooms = make(map[string]string)
		h.channelRooms[connectionID] = rooms
	}
	rooms[channelID] = roomID
}

// LeaveRoom drops the connection from every channel it joined for the room.
func (h *Hub) LeaveRoom(roomID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.channelRooms[connectionID]
	if !ok {
		return
	}
	for channelID, r := range rooms {
		if r != roomID {
			continue
		}
		h.dropMembership(channelID, connectionID)
		delete(rooms, channelID)
	}
}

// dropMembership must be called with the hub lock held.
func (h *Hub) dropMembership(channelID, connectionID string) {
	if members, ok := h.channels[channelID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.channels, channelID)
		}
	}
}

// Broadcast delivers a notification to every connection bound to the
// channel. Slow consumers are skipped rather than blocking delivery.
func (h *Hub) Broadcast(channelID string, payload json.RawMessage) {
	msg := BaseMessage{Type: TypeNotification, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for connectionID := range h.channels[channelID] {
		client, ok := h.clients[connectionID]
		if !ok {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("Dropping notification for slow connection",
				"connectionId", connectionID, "channel", channelID)
		}
	}
}

// IsConnectionAlive reports whether the connection is still registered.
func (h *Hub) IsConnectionAlive(connectionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connectionID]
	return ok
}

// ConnectionsCount returns the number of registered connections.
func (h *Hub) ConnectionsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
