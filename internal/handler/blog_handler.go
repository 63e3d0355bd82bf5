package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/response"
)

type blogService interface {
	Create(ctx context.Context, actorID string, req service.PostRequest) (*models.BlogPost, error)
	Update(ctx context.Context, actorID, id string, req service.PostRequest) (*models.BlogPost, error)
	Submit(ctx context.Context, actorID, id string) (*models.BlogPost, error)
	Moderate(ctx context.Context, actorID, id string, req service.ModerationRequest) (*models.BlogPost, error)
	List(ctx context.Context, actorID string, filter models.PostFilter) ([]models.BlogPost, *models.Pagination, error)
	GetBySlug(ctx context.Context, actorID, postSlug string) (*models.BlogPost, error)
}

// BlogHandler exposes blog posts and their moderation.
type BlogHandler struct {
	service blogService
}

// NewBlogHandler constructs the handler.
func NewBlogHandler(svc blogService) *BlogHandler {
	return &BlogHandler{service: svc}
}

// Create godoc
// @Summary Write a post
// @Description Saved as draft unless submit is true.
// @Tags Blog
// @Accept json
// @Produce json
// @Param payload body service.PostRequest true "Post"
// @Success 201 {object} response.Envelope
// @Router /posts [post]
func (h *BlogHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.PostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	post, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// Update godoc
// @Summary Edit an unpublished post
// @Tags Blog
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.PostRequest true "Post"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /posts/{id} [put]
func (h *BlogHandler) Update(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.PostRequest
	if !bindJSON(c, &req, "invalid post payload") {
		return
	}
	post, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

// Submit godoc
// @Summary Submit a post for moderation
// @Tags Blog
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /posts/{id}/submit [post]
func (h *BlogHandler) Submit(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	post, err := h.service.Submit(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

// Moderate godoc
// @Summary Publish or reject a pending post
// @Tags Blog
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.ModerationRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /posts/{id}/moderate [post]
func (h *BlogHandler) Moderate(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req service.ModerationRequest
	if !bindJSON(c, &req, "invalid moderation payload") {
		return
	}
	post, err := h.service.Moderate(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}

// List godoc
// @Summary List posts
// @Description Published posts by default. author=me lists the caller's own posts in any status.
// @Tags Blog
// @Produce json
// @Param status query string false "draft, pending, published or rejected"
// @Param author query string false "Author ID or me"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /posts [get]
func (h *BlogHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	var filter models.PostFilter
	if status := strings.ToLower(strings.TrimSpace(c.Query("status"))); status != "" {
		s := models.PostStatus(status)
		filter.Status = &s
	}
	filter.AuthorID = strings.TrimSpace(c.Query("author"))
	if filter.AuthorID == "me" {
		filter.AuthorID = userID
	}
	filter.Page, filter.PageSize = pageQuery(c)

	items, pagination, err := h.service.List(c.Request.Context(), userID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a post by slug
// @Tags Blog
// @Produce json
// @Param slug path string true "Post slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /posts/{slug} [get]
func (h *BlogHandler) Get(c *gin.Context) {
	// The route shares its wildcard with the id routes; here it carries the slug.
	post, err := h.service.GetBySlug(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, post)
}
