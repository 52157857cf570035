package admintable

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"
)

const defaultLimit = 20

// Viewer is the operator looking at the table.
type Viewer struct {
	UserID       string
	IsSuperAdmin bool
}

// Controller holds the table's query and the rows of the current page.
// Every successful mutation refreshes the page; a failed one leaves it as is.
type Controller struct {
	backend Backend
	viewer  Viewer
	logger  *slog.Logger

	mu         sync.RWMutex
	query      Query
	rows       []models.Notification
	total      int64
	totalPages int
}

func NewController(backend Backend, viewer Viewer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend: backend,
		viewer:  viewer,
		logger:  logger,
		query:   Query{Page: 1, Limit: defaultLimit},
	}
}

func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.RLock()
	q := c.query
	c.mu.RUnlock()

	page, err := c.backend.List(ctx, q)
	if err != nil {
		c.logger.Warn("admin_table_refresh_failed", "viewer_id", c.viewer.UserID, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = page.Rows
	c.total = page.Total
	c.totalPages = page.TotalPages
	if page.Page > 0 {
		c.query.Page = page.Page
	}
	if page.Limit > 0 {
		c.query.Limit = page.Limit
	}
	return nil
}

// Load replaces the whole query and refreshes once.
func (c *Controller) Load(ctx context.Context, q Query) error {
	q.Page = max(q.Page, 1)
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	q.Search = strings.TrimSpace(q.Search)

	c.mu.Lock()
	c.query = q
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Controller) SetPage(ctx context.Context, page int) error {
	c.mu.Lock()
	c.query.Page = max(page, 1)
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Controller) SetLimit(ctx context.Context, limit int) error {
	c.mu.Lock()
	c.query.Limit = limit
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// SetSearch and SetFilters go back to the first page.
func (c *Controller) SetSearch(ctx context.Context, search string) error {
	c.mu.Lock()
	c.query.Search = strings.TrimSpace(search)
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Controller) SetFilters(ctx context.Context, f Filters) error {
	c.mu.Lock()
	c.query.Filters = f
	c.query.Page = 1
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Controller) Rows() []models.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Notification(nil), c.rows...)
}

func (c *Controller) Query() Query {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

func (c *Controller) Total() (total int64, totalPages int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total, c.totalPages
}

// CanDelete decides whether the row's delete control is shown. The service
// re-checks every rule, SYSTEM protection included.
func (c *Controller) CanDelete(row models.Notification) bool {
	return c.viewer.IsSuperAdmin || row.OwnerUserID == c.viewer.UserID
}

// CanToggleRead mirrors the strict ownership of mark read/unread.
func (c *Controller) CanToggleRead(row models.Notification) bool {
	return row.OwnerUserID == c.viewer.UserID
}

func (c *Controller) MarkRead(ctx context.Context, id string) error {
	return c.mutate(ctx, "mark_read", func() error { return c.backend.MarkRead(ctx, id) })
}

func (c *Controller) MarkUnread(ctx context.Context, id string) error {
	return c.mutate(ctx, "mark_unread", func() error { return c.backend.MarkUnread(ctx, id) })
}

func (c *Controller) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, "delete", func() error { return c.backend.Delete(ctx, id) })
}

func (c *Controller) BulkMarkRead(ctx context.Context, ids []string) (service.BulkMarkResult, error) {
	var res service.BulkMarkResult
	err := c.mutate(ctx, "bulk_mark_read", func() (err error) {
		res, err = c.backend.BulkMarkRead(ctx, ids)
		return err
	})
	return res, err
}

func (c *Controller) BulkMarkUnread(ctx context.Context, ids []string) (service.BulkMarkResult, error) {
	var res service.BulkMarkResult
	err := c.mutate(ctx, "bulk_mark_unread", func() (err error) {
		res, err = c.backend.BulkMarkUnread(ctx, ids)
		return err
	})
	return res, err
}

func (c *Controller) BulkDelete(ctx context.Context, ids []string) (service.BulkDeleteResult, error) {
	var res service.BulkDeleteResult
	err := c.mutate(ctx, "bulk_delete", func() (err error) {
		res, err = c.backend.BulkDelete(ctx, ids)
		return err
	})
	return res, err
}

// mutate runs op and refreshes on success. A failed refresh after a
// successful mutation is logged, not returned.
func (c *Controller) mutate(ctx context.Context, action string, op func() error) error {
	if err := op(); err != nil {
		c.logger.Info("admin_table_action_rejected", "action", action, "viewer_id", c.viewer.UserID, "error", err)
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("admin_table_refresh_after_action_failed", "action", action, "error", err)
	}
	return nil
}

// UserMessage turns a mutation error into text for the operator.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, service.ErrValidation):
		return "The request was incomplete. Select at least one notification and try again."
	case errors.Is(err, service.ErrNotFound):
		return "That notification no longer exists. Refresh the table to see the current list."
	case errors.Is(err, service.ErrForbidden):
		return "You are not allowed to change that notification."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request took too long. Please try again."
	default:
		return "Something went wrong. Please try again later."
	}
}
