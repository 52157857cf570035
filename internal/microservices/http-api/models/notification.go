package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is owned by exactly one user. Content fields are write-once;
// only IsRead/ReadAt change after creation.
type Notification struct {
	ID          string         `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerUserID string         `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Kind        Kind           `gorm:"type:varchar(16);not null;index" json:"kind"`
	Title       string         `gorm:"not null" json:"title"`
	Description *string        `json:"description,omitempty"`
	ActionURL   *string        `json:"action_url,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	IsRead      bool           `gorm:"default:false;not null;index" json:"is_read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Associations
	Owner *Owner `gorm:"foreignKey:OwnerUserID" json:"owner,omitempty"`
}

// BeforeCreate hook to set UUID before creating a Notification
func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}

func (Notification) TableName() string {
	return "notifications"
}

// IsExpired is advisory only; expiry never deletes anything.
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Owner is the joined projection of the owning user.
type Owner struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (Owner) TableName() string {
	return "users"
}
