package websocket

// Central hub managing all connections and rooms.
// Each connection runs its own read/write goroutines, but membership changes
// go through the Register/Unregister channels processed by Run.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"uniportal/internal/fanout"
)

const replayTimeout = 3 * time.Second

// ReplaySource provides the recently delivered messages of a user.
type ReplaySource interface {
	Recent(ctx context.Context, userID string) ([][]byte, error)
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	rooms   map[string]*Room
	clients map[*Client]struct{}
	mu      sync.RWMutex

	replay ReplaySource
	logger *slog.Logger
	done   chan struct{}
}

var _ fanout.Transport = (*Hub)(nil)

func NewHub(replay ReplaySource, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		replay:     replay,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run processes membership changes until ctx is cancelled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.Register:
			h.add(c)
			go h.Replay(ctx, c)
		case c := <-h.Unregister:
			h.remove(c)
		}
	}
}

// Emit delivers msg once to every connection that belongs to at least one of
// the rooms. Connections whose buffer is full are dropped.
func (h *Hub) Emit(_ context.Context, rooms []string, msg []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]struct{})
	for _, key := range rooms {
		room, ok := h.rooms[key]
		if !ok {
			continue
		}
		for _, c := range room.GetClients() {
			targets[c] = struct{}{}
		}
	}

	for c := range targets {
		if !c.trySend(msg) {
			h.logger.Warn("ws_slow_client_dropped", "client_id", c.ID, "user_id", c.UserID)
			h.drop(c)
		}
	}
	return nil
}

// Replay re-sends the user's delivery cache to one connection.
func (h *Hub) Replay(ctx context.Context, c *Client) {
	if h.replay == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replayTimeout)
	defer cancel()

	msgs, err := h.replay.Recent(ctx, c.UserID)
	if err != nil {
		h.logger.Warn("ws_replay_failed", "user_id", c.UserID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, msg := range msgs {
		if !c.trySend(msg) {
			h.drop(c)
			return
		}
	}
	h.logger.Debug("ws_replayed", "user_id", c.UserID, "count", len(msgs))
}

// SendTo delivers msg to a single registered connection.
func (h *Hub) SendTo(c *Client, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	return c.trySend(msg)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[key]; ok {
		return room.GetClientCount()
	}
	return 0
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	for _, key := range c.Rooms {
		room, ok := h.rooms[key]
		if !ok {
			room = NewRoom(key)
			h.rooms[key] = room
		}
		room.AddClient(c)
	}
	h.logger.Info("ws_client_registered", "client_id", c.ID, "user_id", c.UserID, "rooms", c.Rooms)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, key := range c.Rooms {
		room, ok := h.rooms[key]
		if !ok {
			continue
		}
		room.RemoveClient(c)
		if room.GetClientCount() == 0 {
			delete(h.rooms, key)
		}
	}
	close(c.SendChannel)
	h.logger.Info("ws_client_unregistered", "client_id", c.ID, "user_id", c.UserID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.SendChannel)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]*Room)
}

// drop unregisters c without blocking the caller, which may hold h.mu.
func (h *Hub) drop(c *Client) {
	go func() {
		select {
		case h.Unregister <- c:
		case <-h.done:
		}
	}()
}
