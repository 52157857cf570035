package service

import (
	"context"

	"uniportal/internal/microservices/http-api/models"
)

// Audience selects which broadcast rooms, besides the owners' own, see a creation.
type Audience int

const (
	AudienceUser Audience = iota
	AudienceSuperAdmins
	AudienceAllAdmins
)

// Notifier receives committed mutations. Implementations are best-effort and
// must never fail the mutation that triggered them.
type Notifier interface {
	NotificationsCreated(ctx context.Context, created []models.Notification, audience Audience)
	NotificationUpdated(ctx context.Context, notification models.Notification)
	NotificationsDeleted(ctx context.Context, actorID string, deleted []models.Notification)
	// NotificationsSynced carries the newest rows plus the counts of the whole
	// scope the rows were cut from.
	NotificationsSynced(ctx context.Context, userID string, snapshot []models.Notification, total, unread int)
}

type noopNotifier struct{}

func (noopNotifier) NotificationsCreated(context.Context, []models.Notification, Audience) {}
func (noopNotifier) NotificationUpdated(context.Context, models.Notification) {}
func (noopNotifier) NotificationsDeleted(context.Context, string, []models.Notification) {}
func (noopNotifier) NotificationsSynced(context.Context, string, []models.Notification, int, int) {}
