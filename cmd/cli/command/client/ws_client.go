package client

// ws_client.go = real-time notification stream for the CLI.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"uniportal/internal/fanout"
	"uniportal/internal/reconciler"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// EventStream decodes server messages and dispatches them by event name.
// It satisfies reconciler.EventSource.
type EventStream struct {
	conn       *websocket.Conn
	dispatcher *reconciler.Dispatcher
	logger     *slog.Logger
	writeMu    sync.Mutex
	// OnRaw sees every decoded message, including pong and error replies.
	OnRaw func(fanout.Message)
}

var _ reconciler.EventSource = (*EventStream)(nil)

// Dial connects to wsURL, authenticating with token.
func Dial(ctx context.Context, wsURL, token string, logger *slog.Logger) (*EventStream, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	// Connect with auth header
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{conn: conn, dispatcher: reconciler.NewDispatcher(), logger: logger}, nil
}

func (s *EventStream) On(event string, handler func(fanout.Message)) func() {
	return s.dispatcher.On(event, handler)
}

// RequestReplay asks the server to resend recently delivered messages.
func (s *EventStream) RequestReplay() error {
	return s.writeJSON(map[string]string{"type": "replay"})
}

func (s *EventStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Run reads until ctx is cancelled or the connection drops. A clean close
// returns nil.
func (s *EventStream) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.writeMu.Lock()
				s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				s.writeMu.Unlock()
				s.conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := s.writeJSON(map[string]string{"type": "ping"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := fanout.DecodeMessage(data)
		if err != nil {
			s.logger.Warn("ws_message_decode_failed", "error", err)
			continue
		}
		if s.OnRaw != nil {
			s.OnRaw(*msg)
		}
		s.dispatcher.Dispatch(*msg)
	}
}

func (s *EventStream) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
