package websocket

import (
	"log/slog"
	"sync"
)

// Room groups the connections that share a delivery key
// (user:<id>, role:super_admin, role:admin).
type Room struct {
	ID      string             // room key
	Clients map[string]*Client // map[clientID] -> *Client
	mu      sync.RWMutex
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		Clients: make(map[string]*Client),
	}
}

// AddClient adds a connection to the room
func (r *Room) AddClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clients[c.ID] != nil {
		slog.Warn("Client already in room", "room_id", r.ID, "client_id", c.ID)
		return
	}
	r.Clients[c.ID] = c
	slog.Debug("Client added to room", "room_id", r.ID, "client_id", c.ID)
}

// RemoveClient removes a connection from the room
func (r *Room) RemoveClient(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clients[c.ID] == nil {
		return
	}
	delete(r.Clients, c.ID)
	slog.Debug("Client removed from room", "room_id", r.ID, "client_id", c.ID)
}

func (r *Room) GetClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// GetClients returns a copy of the room members
func (r *Room) GetClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, client := range r.Clients {
		clients = append(clients, client)
	}
	return clients
}
