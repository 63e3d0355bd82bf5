package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context) ([]models.AcademicSession, error)
	Active(ctx context.Context) (*models.AcademicSession, error)
	Create(ctx context.Context, actorID string, req service.CreateSessionRequest) (*models.AcademicSession, error)
	Activate(ctx context.Context, actorID, id string) error
	RollForward(ctx context.Context, actorID string) (*models.RollForwardResult, error)
}

// SessionHandler exposes academic sessions and the yearly roll-forward.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List academic sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Active godoc
// @Summary Get the active academic session
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	session, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Create godoc
// @Summary Create an academic session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.CreateSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Activate godoc
// @Summary Make a session the active one
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/activate [post]
func (h *SessionHandler) Activate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.service.Activate(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RollForward godoc
// @Summary Promote every student one academic level
// @Description Runs atomically: 400 becomes alumni, then 300, 200 and 100 move up, and the active session is closed.
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /sessions/roll-forward [post]
func (h *SessionHandler) RollForward(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	result, err := h.service.RollForward(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
