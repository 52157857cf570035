package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uniportal/internal/fanout"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_DispatchesByEvent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msg, _ := fanout.NewMessage(fanout.EventNew, fanout.Payload{ID: "n1", ToUserID: "u1", Title: "Exam moved"}, time.Now())
		raw, _ := msg.Encode()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, raw)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(data)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "tok", nil)
	require.NoError(t, err)

	received := make(chan fanout.Message, 1)
	off := stream.On(fanout.EventNew, func(m fanout.Message) { received <- m })
	defer off()

	runErr := make(chan error, 1)
	go func() { runErr <- stream.Run(ctx) }()

	select {
	case m := <-received:
		assert.Equal(t, fanout.EventNew, m.Event)
		assert.Contains(t, string(m.Data), `"id":"n1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("notification:new was not dispatched")
	}

	require.NoError(t, stream.RequestReplay())
	select {
	case f := <-frames:
		assert.JSONEq(t, `{"type":"replay"}`, f)
	case <-time.After(2 * time.Second):
		t.Fatal("replay frame not received")
	}

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
