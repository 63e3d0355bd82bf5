package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/dto"
	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, actorID string, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error)
	SetRole(ctx context.Context, actorID, profileID string, role models.Role) (*models.Profile, error)
	SetLevel(ctx context.Context, actorID, profileID string, raw *string) (*models.Profile, error)
}

// UserHandler exposes profile administration.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List profiles with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param level query string false "Academic level filter (level_100 or 100)"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var filter models.ProfileFilter
	filter.Page, filter.PageSize = pageQuery(c)

	if role := strings.TrimSpace(c.Query("role")); role != "" {
		r := models.Role(strings.ToLower(role))
		if !r.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown role"))
			return
		}
		filter.Role = &r
	}
	if raw := strings.TrimSpace(c.Query("level")); raw != "" {
		level, ok := models.ParseAcademicLevel(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown academic level"))
			return
		}
		filter.Level = &level
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	filter.Search = c.Query("search")

	users, pagination, err := h.service.List(c.Request.Context(), userID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// SetRole godoc
// @Summary Change a user's role
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body dto.RoleRequest true "Role"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/role [patch]
func (h *UserHandler) SetRole(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.RoleRequest
	if !bindJSON(c, &req, "role is required") {
		return
	}
	profile, err := h.service.SetRole(c.Request.Context(), userID, c.Param("id"), models.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// SetLevel godoc
// @Summary Change a user's academic level
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body dto.LevelRequest true "Academic level"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id}/level [patch]
func (h *UserHandler) SetLevel(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.LevelRequest
	if !bindJSON(c, &req, "invalid level payload") {
		return
	}
	profile, err := h.service.SetLevel(c.Request.Context(), userID, c.Param("id"), req.AcademicLevel)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}
