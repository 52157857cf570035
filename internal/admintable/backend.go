package admintable

import (
	"context"

	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"
)

// Filters are the table's column filters.
type Filters struct {
	Kind        *models.Kind
	IsRead      *bool
	OwnerUserID string
}

type Query struct {
	Page    int
	Limit   int
	Search  string
	Filters Filters
}

// Backend performs the table's reads and mutations as the viewing operator.
type Backend interface {
	List(ctx context.Context, q Query) (*service.Page, error)
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	BulkMarkRead(ctx context.Context, ids []string) (service.BulkMarkResult, error)
	BulkMarkUnread(ctx context.Context, ids []string) (service.BulkMarkResult, error)
	BulkDelete(ctx context.Context, ids []string) (service.BulkDeleteResult, error)
}
