package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"uniportal/internal/microservices/http-api/dto"
	"uniportal/internal/microservices/http-api/middleware"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/repository"
	"uniportal/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 5 * time.Second

type NotificationHandler struct {
	svc service.NotificationService
	// guards run before every mutating route (rate limiting).
	guards []gin.HandlerFunc
	now    func() time.Time
}

func NewNotificationHandler(svc service.NotificationService, guards ...gin.HandlerFunc) *NotificationHandler {
	return &NotificationHandler{svc: svc, guards: guards, now: time.Now}
}

func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.PUT("/:id/read", h.guarded(h.MarkRead)...)
	rg.PUT("/:id/unread", h.guarded(h.MarkUnread)...)
	rg.DELETE("/:id", h.guarded(h.Delete)...)
	rg.POST("/bulk/read", h.guarded(h.BulkMarkRead)...)
	rg.POST("/bulk/unread", h.guarded(h.BulkMarkUnread)...)
	rg.POST("/bulk/delete", h.guarded(h.BulkDelete)...)
}

func (h *NotificationHandler) guarded(handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(h.guards)+1)
	chain = append(chain, h.guards...)
	return append(chain, handler)
}

// List returns the caller's visible notifications, newest first
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var q dto.ListNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filters, err := parseFilters(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page := h.svc.List(ctx, repository.ListQuery{
		Page:               q.Page,
		Limit:              q.Limit,
		Search:             q.Search,
		Filters:            filters,
		ViewerUserID:       actor.UserID,
		ViewerIsSuperAdmin: actor.IsSuperAdmin,
	})

	now := h.now()
	rows := make([]dto.NotificationResponse, 0, len(page.Rows))
	for i := range page.Rows {
		rows = append(rows, dto.FromNotification(&page.Rows[i], now))
	}

	c.JSON(http.StatusOK, dto.NotificationListResponse{
		Rows:       rows,
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.setReadState(c, h.svc.MarkRead)
}

func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.setReadState(c, h.svc.MarkUnread)
}

func (h *NotificationHandler) setReadState(c *gin.Context, apply func(context.Context, string, service.Actor) (*models.Notification, error)) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, err := apply(ctx, c.Param("id"), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromNotification(n, h.now()))
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Delete(ctx, c.Param("id"), actor); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
}

func (h *NotificationHandler) BulkMarkRead(c *gin.Context) {
	h.bulkSetReadState(c, h.svc.BulkMarkRead)
}

func (h *NotificationHandler) BulkMarkUnread(c *gin.Context) {
	h.bulkSetReadState(c, h.svc.BulkMarkUnread)
}

func (h *NotificationHandler) bulkSetReadState(c *gin.Context, apply func(context.Context, []string, service.Actor) (service.BulkMarkResult, error)) {
	actor, ids, ok := bindBulk(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := apply(ctx, ids, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BulkMarkResponse{Count: res.Count, AlreadyAffected: res.AlreadyAffected})
}

func (h *NotificationHandler) BulkDelete(c *gin.Context) {
	actor, ids, ok := bindBulk(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.BulkDelete(ctx, ids, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BulkDeleteResponse{Count: res.Count, Skipped: res.Skipped})
}

func bindBulk(c *gin.Context) (service.Actor, []string, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return service.Actor{}, nil, false
	}

	var req dto.BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return service.Actor{}, nil, false
	}
	return actor, req.IDs, true
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		return service.Actor{}, false
	}
	return service.Actor{UserID: userID, IsSuperAdmin: middleware.IsSuperAdmin(c)}, true
}

func parseFilters(q dto.ListNotificationsQuery) (repository.ListFilters, error) {
	var f repository.ListFilters
	if strings.TrimSpace(q.Kind) != "" {
		kind, err := models.ParseKind(q.Kind)
		if err != nil {
			return f, err
		}
		f.Kind = &kind
	}
	if strings.TrimSpace(q.IsRead) != "" {
		read, err := strconv.ParseBool(q.IsRead)
		if err != nil {
			return f, errors.New("is_read must be true or false")
		}
		f.IsRead = &read
	}
	f.OwnerUserID = strings.TrimSpace(q.OwnerID)
	return f, nil
}

// writeServiceError maps the service sentinels onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
