package websocket

import (
	"context"
	"log/slog"
	"time"

	"uniportal/internal/fanout"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const ( // ping pong (2-way heartbeat) keeps the connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // no pong within this window = dead connection
	PingPeriod     = (PongWait * 9) / 10 // ping before PongWait expires, leaving room for jitter
	MaxMessageSize = 512                 // maximum inbound frame size
	SendBufferSize = 64                  // queued outbound messages before a client counts as slow
)

// inbound frame budget per connection
const (
	FrameRateLimit = 10
	FrameBurst     = 20
)

type Client struct {
	ID          string          // unique connection ID
	UserID      string          // from the JWT claims
	Role        string          // from the JWT claims
	Rooms       []string        // rooms joined on register
	Conn        *websocket.Conn // nil in tests
	SendChannel chan []byte     // outbound messages, closed by the Hub
	Hub         *Hub

	limiter *rate.Limiter
}

// NewClient joins the user's own room plus the broadcast room of its role.
func NewClient(userID, role string, conn *websocket.Conn, hub *Hub) *Client {
	rooms := []string{fanout.UserRoom(userID)}
	if roleRoom := fanout.RoleRoom(role); roleRoom != "" {
		rooms = append(rooms, roleRoom)
	}
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		Role:        role,
		Rooms:       rooms,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBufferSize),
		Hub:         hub,
		limiter:     rate.NewLimiter(rate.Limit(FrameRateLimit), FrameBurst),
	}
}

// trySend never blocks. Callers must hold the hub read lock.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.SendChannel <- msg:
		return true
	default:
		return false
	}
}

// ReadPump handles client frames until the connection fails.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.drop(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws_read_failed", "client_id", c.ID, "user_id", c.UserID, "error", err)
			}
			return
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	if !c.limiter.Allow() {
		c.reply(EventError, ErrorData{Error: "rate limit exceeded"})
		return
	}

	frame, err := FrameFromJSON(data)
	if err != nil {
		c.reply(EventError, ErrorData{Error: "malformed frame"})
		return
	}

	switch frame.Type {
	case FrameReplay:
		c.Hub.Replay(ctx, c)
	case FramePing:
		c.reply(EventPong, struct{}{})
	default:
		c.reply(EventError, ErrorData{Error: "unknown frame type: " + string(frame.Type)})
	}
}

func (c *Client) reply(event string, data any) {
	msg, err := fanout.NewMessage(event, data, time.Now())
	if err != nil {
		return
	}
	raw, err := msg.Encode()
	if err != nil {
		return
	}
	c.Hub.SendTo(c, raw)
}

// WritePump drains SendChannel and keeps the heartbeat going.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChannel:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// hub closed the channel
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("ws_write_failed", "client_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
