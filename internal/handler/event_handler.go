package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/dto"
	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/response"
)

type eventService interface {
	Create(ctx context.Context, actorID string, req service.EventRequest) (*models.Event, error)
	List(ctx context.Context, actorID string, filter models.EventFilter) ([]models.Event, *models.Pagination, error)
	Get(ctx context.Context, actorID, id string) (*models.Event, error)
	SetStatus(ctx context.Context, actorID, id, status string) (*models.Event, error)
	Register(ctx context.Context, actorID, eventID string) (*models.EventRegistration, error)
	CancelRegistration(ctx context.Context, actorID, eventID string) error
	RegisterGuest(ctx context.Context, req service.GuestRegistrationRequest) (*models.GuestRegistrationResult, error)
	ExportRegistrations(ctx context.Context, actorID, eventID, rawFormat string) (*service.ExportFile, error)
}

// EventHandler exposes events and registrations.
type EventHandler struct {
	service eventService
}

// NewEventHandler constructs the handler.
func NewEventHandler(svc eventService) *EventHandler {
	return &EventHandler{service: svc}
}

// Create godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.EventRequest true "Event"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.EventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// List godoc
// @Summary List events
// @Description Anonymous callers and members see published events; staff and admins may filter by status.
// @Tags Events
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param upcoming query bool false "Only events that have not started"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var filter models.EventFilter
	for _, raw := range strings.Split(c.Query("status"), ",") {
		if status := strings.ToLower(strings.TrimSpace(raw)); status != "" {
			filter.Statuses = append(filter.Statuses, models.EventStatus(status))
		}
	}
	filter.Upcoming, _ = strconv.ParseBool(c.Query("upcoming"))
	filter.Page, filter.PageSize = pageQuery(c)

	items, pagination, err := h.service.List(c.Request.Context(), currentUserID(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}

// SetStatus godoc
// @Summary Publish, cancel or complete an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.StatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/status [patch]
func (h *EventHandler) SetStatus(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.StatusRequest
	if !bindJSON(c, &req, "status is required") {
		return
	}
	event, err := h.service.SetStatus(c.Request.Context(), userID, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}

// Register godoc
// @Summary Register the caller for an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *EventHandler) Register(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	reg, err := h.service.Register(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// CancelRegistration godoc
// @Summary Cancel the caller's registration
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/register [delete]
func (h *EventHandler) CancelRegistration(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.service.CancelRegistration(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRegistrations godoc
// @Summary Export an event's registrants
// @Tags Events
// @Produce text/csv,application/pdf
// @Param id path string true "Event ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /events/{id}/registrations/export [get]
func (h *EventHandler) ExportRegistrations(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	file, err := h.service.ExportRegistrations(c.Request.Context(), userID, c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	writeExport(c, file)
}

// GuestRegister godoc
// @Summary Register a guest for an event
// @Description Public endpoint with a flat body. Errors are returned as {"error": "..."}.
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.GuestRegistrationRequest true "Guest details"
// @Success 200 {object} response.LegacyResult
// @Failure 400 {object} response.LegacyResult
// @Failure 404 {object} response.LegacyResult
// @Failure 500 {object} response.LegacyResult
// @Router /api/events/guest-register [post]
func (h *EventHandler) GuestRegister(c *gin.Context) {
	var req service.GuestRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.LegacyError(c, appErrors.Clone(appErrors.ErrValidation, "Missing required fields"))
		return
	}
	result, err := h.service.RegisterGuest(c.Request.Context(), req)
	if err != nil {
		response.LegacyError(c, err)
		return
	}
	hasAccount := result.HasAccount
	response.Legacy(c, http.StatusOK, response.LegacyResult{
		Success:    true,
		Message:    "Successfully registered for the event",
		HasAccount: &hasAccount,
	})
}
