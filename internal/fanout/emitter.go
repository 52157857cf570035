package fanout

import (
	"context"
	"log/slog"
	"time"

	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"
)

const emitTimeout = 2 * time.Second

// Transport delivers an encoded message to every connection in the given rooms.
type Transport interface {
	Emit(ctx context.Context, rooms []string, msg []byte) error
}

// DeliveryCache keeps the latest messages per user for replay on connect.
type DeliveryCache interface {
	Append(ctx context.Context, userID string, msg []byte) error
	Recent(ctx context.Context, userID string) ([][]byte, error)
}

// Emitter turns committed mutations into real-time events. It implements
// service.Notifier and never reports failures to the mutation path.
type Emitter struct {
	transport Transport
	cache     DeliveryCache
	logger    *slog.Logger
	now       func() time.Time
}

var _ service.Notifier = (*Emitter)(nil)

func NewEmitter(transport Transport, cache DeliveryCache, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		transport: transport,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *Emitter) NotificationsCreated(ctx context.Context, created []models.Notification, audience service.Audience) {
	for _, n := range created {
		rooms := []string{UserRoom(n.OwnerUserID), RoomSuperAdmins}
		if audience == service.AudienceAllAdmins {
			rooms = append(rooms, RoomAdmins)
		}
		e.publish(ctx, EventNew, PayloadFrom(n), rooms)
	}
}

func (e *Emitter) NotificationUpdated(ctx context.Context, n models.Notification) {
	e.publish(ctx, EventUpdated, PayloadFrom(n), []string{UserRoom(n.OwnerUserID), RoomSuperAdmins})
}

// NotificationsDeleted tells the owners, the acting user and the super-admin
// room. A single record uses the singular event.
func (e *Emitter) NotificationsDeleted(ctx context.Context, actorID string, deleted []models.Notification) {
	if len(deleted) == 0 {
		return
	}

	rooms := make([]string, 0, len(deleted)+2)
	ids := make([]string, 0, len(deleted))
	for _, n := range deleted {
		rooms = append(rooms, UserRoom(n.OwnerUserID))
		ids = append(ids, n.ID)
	}
	if actorID != "" {
		rooms = append(rooms, UserRoom(actorID))
	}
	rooms = append(rooms, RoomSuperAdmins)

	if len(deleted) == 1 {
		e.publish(ctx, EventDeleted, DeletedPayload{ID: deleted[0].ID, ToUserID: deleted[0].OwnerUserID}, rooms)
		return
	}
	e.publish(ctx, EventDeletedMany, DeletedManyPayload{IDs: ids}, rooms)
}

func (e *Emitter) NotificationsSynced(ctx context.Context, userID string, snapshot []models.Notification, total, unread int) {
	payload := SyncPayload{
		Notifications: make([]Payload, 0, len(snapshot)),
		Total:         &total,
		Unread:        &unread,
	}
	for _, n := range snapshot {
		payload.Notifications = append(payload.Notifications, PayloadFrom(n))
	}
	e.publish(ctx, EventSync, payload, []string{UserRoom(userID)})
}

func (e *Emitter) publish(ctx context.Context, event string, data any, rooms []string) {
	rooms = dedupeRooms(rooms)

	msg, err := NewMessage(event, data, e.now())
	if err != nil {
		e.logger.Error("emit_encode_failed", "event", event, "error", err)
		return
	}
	raw, err := msg.Encode()
	if err != nil {
		e.logger.Error("emit_encode_failed", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	if e.cache != nil {
		for _, room := range rooms {
			userID, ok := userFromRoom(room)
			if !ok {
				continue
			}
			if err := e.cache.Append(ctx, userID, raw); err != nil {
				e.logger.Warn("delivery_cache_write_failed", "event", event, "user_id", userID, "error", err)
			}
		}
	}

	if e.transport == nil {
		return
	}
	if err := e.transport.Emit(ctx, rooms, raw); err != nil {
		e.logger.Warn("emit_failed", "event", event, "rooms", rooms, "error", err)
		return
	}
	e.logger.Debug("emitted", "event", event, "rooms", rooms)
}

func dedupeRooms(rooms []string) []string {
	seen := make(map[string]struct{}, len(rooms))
	out := rooms[:0]
	for _, r := range rooms {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
