package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/middleware"
	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, actorID string) (*models.Dashboard, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Role-shaped dashboard for the caller
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}
