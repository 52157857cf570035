package dto

import (
	"encoding/json"
	"time"

	"uniportal/internal/microservices/http-api/models"
)

// ListNotificationsQuery: query string of GET /api/notifications
type ListNotificationsQuery struct {
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
	Search  string `form:"search"`
	Kind    string `form:"kind"`
	IsRead  string `form:"is_read"`
	OwnerID string `form:"owner_id"`
}

// BulkIDsRequest: body of the bulk endpoints
type BulkIDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// CreateNotificationRequest: payload used by trusted internal callers
type CreateNotificationRequest struct {
	OwnerUserID string          `json:"owner_user_id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	ActionURL   *string         `json:"action_url"`
	Kind        string          `json:"kind"`
	Metadata    json.RawMessage `json:"metadata"`
	ExpiresAt   *time.Time      `json:"expires_at"`
}

type OwnerResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NotificationResponse mirrors models.Notification plus the advisory expired flag.
type NotificationResponse struct {
	ID          string          `json:"id"`
	OwnerUserID string          `json:"owner_user_id"`
	Owner       *OwnerResponse  `json:"owner,omitempty"`
	Kind        models.Kind     `json:"kind"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	ActionURL   *string         `json:"action_url,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	IsRead      bool            `json:"is_read"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Expired     bool            `json:"expired"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NotificationListResponse struct {
	Rows       []NotificationResponse `json:"rows"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	Total      int64                  `json:"total"`
	TotalPages int                    `json:"totalPages"`
}

type BulkMarkResponse struct {
	Count           int `json:"count"`
	AlreadyAffected int `json:"alreadyAffected"`
}

type BulkDeleteResponse struct {
	Count   int `json:"count"`
	Skipped int `json:"skipped"`
}

type FanoutResponse struct {
	Created int `json:"created"`
}

func FromNotification(n *models.Notification, now time.Time) NotificationResponse {
	resp := NotificationResponse{
		ID:          n.ID,
		OwnerUserID: n.OwnerUserID,
		Kind:        n.Kind,
		Title:       n.Title,
		Description: n.Description,
		ActionURL:   n.ActionURL,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		ExpiresAt:   n.ExpiresAt,
		Expired:     n.IsExpired(now),
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
	if len(n.Metadata) > 0 {
		resp.Metadata = json.RawMessage(n.Metadata)
	}
	if n.Owner != nil {
		resp.Owner = &OwnerResponse{ID: n.Owner.ID, Email: n.Owner.Email, Name: n.Owner.Name}
	}
	return resp
}
