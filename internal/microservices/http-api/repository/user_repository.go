package repository

import (
	"context"
	"errors"
	"fmt"

	"uniportal/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository is the identity/role lookup used by the notification core.
type UserRepository interface {
	// FindActiveByID fails with ErrUserNotFound for missing, inactive and soft-deleted users.
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
	FindActiveIDsByRoles(ctx context.Context, roles ...string) ([]string, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindActiveByID(ctx context.Context, id string) (*models.User, error) {
	if len(validIDs([]string{id})) == 0 {
		return nil, ErrUserNotFound
	}

	var user models.User
	// gorm excludes soft-deleted rows on its own
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", classify(err))
	}
	return &user, nil
}

func (r *userRepository) FindActiveIDsByRoles(ctx context.Context, roles ...string) ([]string, error) {
	ids := []string{}
	if len(roles) == 0 {
		return ids, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role IN ? AND is_active = ?", roles, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("find users by role: %w", classify(err))
	}
	return ids, nil
}
