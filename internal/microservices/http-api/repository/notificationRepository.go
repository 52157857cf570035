package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"uniportal/internal/microservices/http-api/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

// ListFilters are column filters; they compose with the visibility rule by conjunction.
type ListFilters struct {
	Kind        *models.Kind
	IsRead      *bool
	OwnerUserID string
}

type ListQuery struct {
	Page               int
	Limit              int
	Search             string
	Filters            ListFilters
	ViewerUserID       string
	ViewerIsSuperAdmin bool
}

func (q ListQuery) offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

type NotificationRepository interface {
	List(ctx context.Context, q ListQuery) ([]models.Notification, int64, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Notification, error)
	Create(ctx context.Context, notification *models.Notification) error
	CreateMany(ctx context.Context, notifications []*models.Notification) error
	// SetReadState flips only the rows whose read state differs from read.
	SetReadState(ctx context.Context, ids []string, read bool, at time.Time) (int64, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// scopedQuery applies visibility, filters and search. ok is false when the
// viewer can see nothing at all, so callers skip the round trip.
func (r *notificationRepository) scopedQuery(ctx context.Context, q ListQuery) (*gorm.DB, bool) {
	if !q.ViewerIsSuperAdmin && q.ViewerUserID == "" {
		return nil, false
	}
	if q.Filters.OwnerUserID != "" {
		if _, err := uuid.Parse(q.Filters.OwnerUserID); err != nil {
			return nil, false
		}
	}

	db := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Joins("LEFT JOIN users AS owner ON owner.id = notifications.owner_user_id")

	// Non super-admins see only their own rows, never SYSTEM ones.
	if !q.ViewerIsSuperAdmin {
		db = db.Where("notifications.owner_user_id = ?", q.ViewerUserID).
			Where("notifications.kind <> ?", models.KindSystem)
	}

	if q.Filters.Kind != nil {
		db = db.Where("notifications.kind = ?", *q.Filters.Kind)
	}
	if q.Filters.IsRead != nil {
		db = db.Where("notifications.is_read = ?", *q.Filters.IsRead)
	}
	if q.Filters.OwnerUserID != "" {
		db = db.Where("notifications.owner_user_id = ?", q.Filters.OwnerUserID)
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		p := "%" + escapeLike(search) + "%"
		// use COALESCE so NULL description/name never short-circuit the OR
		db = db.Where(
			"(notifications.title ILIKE ? OR COALESCE(notifications.description,'') ILIKE ? OR owner.email ILIKE ? OR COALESCE(owner.name,'') ILIKE ?)",
			p, p, p, p,
		)
	}

	return db.Session(&gorm.Session{}), true
}

func (r *notificationRepository) List(ctx context.Context, q ListQuery) ([]models.Notification, int64, error) {
	list := []models.Notification{}

	db, ok := r.scopedQuery(ctx, q)
	if !ok {
		return list, 0, nil
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", classify(err))
	}
	if total == 0 {
		return list, 0, nil
	}

	if err := db.
		Select("notifications.*").
		Preload("Owner").
		Order("notifications.created_at DESC, notifications.id DESC").
		Limit(q.Limit).
		Offset(q.offset()).
		Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", classify(err))
	}

	return list, total, nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		if err := classify(err); errors.Is(err, errInvalidValue) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

// FindByIDs returns the rows that exist; missing ids are simply absent.
func (r *notificationRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Notification, error) {
	list := []models.Notification{}
	valid := validIDs(ids)
	if len(valid) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).
		Where("id IN ?", valid).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("find notifications: %w", classify(err))
	}
	return list, nil
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("create notification: %w", classify(err))
	}
	return nil
}

func (r *notificationRepository) CreateMany(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return fmt.Errorf("create notifications: %w", classify(err))
	}
	return nil
}

func (r *notificationRepository) SetReadState(ctx context.Context, ids []string, read bool, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := map[string]any{
		"is_read":    read,
		"read_at":    nil,
		"updated_at": at,
	}
	if read {
		updates["read_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id IN ? AND is_read = ?", ids, !read).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("update read state: %w", classify(result.Error))
	}
	return result.RowsAffected, nil
}

func (r *notificationRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete notifications: %w", classify(result.Error))
	}
	return result.RowsAffected, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// validIDs drops anything that is not a uuid; such ids cannot exist.
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
