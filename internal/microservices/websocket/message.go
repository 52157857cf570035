package websocket

import (
	"encoding/json"
	"fmt"
)

// Client to server frames
type FrameType string

const (
	FrameReplay FrameType = "replay" // re-send the delivery cache
	FramePing   FrameType = "ping"   // application level liveness check
)

// Server replies that are not notification events
const (
	EventPong  = "pong"
	EventError = "error"
)

type Frame struct {
	Type FrameType `json:"type"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// FrameFromJSON: unmarshal an inbound frame
func FrameFromJSON(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode frame: missing type")
	}
	return &f, nil
}
