package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"uniportal/internal/microservices/http-api/models"

	"gorm.io/datatypes"
)

// Event names shared by the server emitter and every client.
const (
	EventNew         = "notification:new"
	EventUpdated     = "notification:updated"
	EventDeleted     = "notification:deleted"
	EventDeletedMany = "notifications:deleted"
	EventSync        = "notifications:sync"
)

// Room keys
const (
	RoomSuperAdmins = "role:super_admin"
	RoomAdmins      = "role:admin"
	userRoomPrefix  = "user:"
)

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// RoleRoom returns the broadcast room for a role, or "" when the role has none.
func RoleRoom(role string) string {
	switch role {
	case models.RoleSuperAdmin:
		return RoomSuperAdmins
	case models.RoleAdmin:
		return RoomAdmins
	default:
		return ""
	}
}

// userFromRoom extracts the user id from a user room key.
func userFromRoom(room string) (string, bool) {
	if len(room) <= len(userRoomPrefix) || room[:len(userRoomPrefix)] != userRoomPrefix {
		return "", false
	}
	return room[len(userRoomPrefix):], true
}

// Message is the envelope written on the wire for every event.
type Message struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sentAt"`
}

func NewMessage(event string, data any, sentAt time.Time) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return &Message{Event: event, Data: raw, SentAt: sentAt.UTC()}, nil
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(raw []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Event == "" {
		return nil, fmt.Errorf("decode message: missing event name")
	}
	return &m, nil
}

// Payload is the stable per-notification contract for notification:new,
// notification:updated and the entries of notifications:sync.
type Payload struct {
	ID          string         `json:"id"`
	ToUserID    string         `json:"toUserId"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Kind        models.Kind    `json:"kind"`
	Read        bool           `json:"read"`
	ActionURL   *string        `json:"actionUrl,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func PayloadFrom(n models.Notification) Payload {
	return Payload{
		ID:          n.ID,
		ToUserID:    n.OwnerUserID,
		Title:       n.Title,
		Description: n.Description,
		Kind:        n.Kind,
		Read:        n.IsRead,
		ActionURL:   n.ActionURL,
		Metadata:    n.Metadata,
		Timestamp:   n.CreatedAt,
	}
}

type DeletedPayload struct {
	ID       string `json:"id"`
	ToUserID string `json:"toUserId"`
}

type DeletedManyPayload struct {
	IDs []string `json:"ids"`
}

// SyncPayload is an authoritative snapshot. Total and Unread count the whole
// scope the rows were cut from; they are nil from senders that predate them.
type SyncPayload struct {
	Notifications []Payload `json:"notifications"`
	Total         *int      `json:"total,omitempty"`
	Unread        *int      `json:"unread,omitempty"`
}
