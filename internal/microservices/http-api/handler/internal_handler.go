package handler

import (
	"context"
	"net/http"

	"uniportal/internal/microservices/http-api/dto"
	"uniportal/internal/microservices/http-api/middleware"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// InternalHandler lets other portal components raise notifications.
type InternalHandler struct {
	svc service.NotificationService
}

func NewInternalHandler(svc service.NotificationService) *InternalHandler {
	return &InternalHandler{svc: svc}
}

func (h *InternalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Use(middleware.RequireAdmin())
	rg.POST("", h.CreateForUser)
	rg.POST("/super-admins", h.CreateForSuperAdmins)
	rg.POST("/admins", h.CreateForAllAdmins)
}

func (h *InternalHandler) CreateForUser(c *gin.Context) {
	in, ok := bindCreate(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, err := h.svc.CreateForUser(ctx, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if n == nil {
		// empty title or inactive recipient
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}

	c.JSON(http.StatusCreated, dto.FromNotification(n, n.CreatedAt))
}

func (h *InternalHandler) CreateForSuperAdmins(c *gin.Context) {
	h.fanout(c, h.svc.CreateForSuperAdmins)
}

func (h *InternalHandler) CreateForAllAdmins(c *gin.Context) {
	h.fanout(c, h.svc.CreateForAllAdmins)
}

func (h *InternalHandler) fanout(c *gin.Context, create func(context.Context, service.CreateInput) (int, error)) {
	in, ok := bindCreate(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	count, err := create(ctx, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FanoutResponse{Created: count})
}

func bindCreate(c *gin.Context) (service.CreateInput, bool) {
	var req dto.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return service.CreateInput{}, false
	}

	in := service.CreateInput{
		OwnerUserID: req.OwnerUserID,
		Title:       req.Title,
		Description: req.Description,
		ActionURL:   req.ActionURL,
		Kind:        models.Kind(req.Kind),
		ExpiresAt:   req.ExpiresAt,
	}
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		in.Metadata = datatypes.JSON(req.Metadata)
	}
	return in, true
}
