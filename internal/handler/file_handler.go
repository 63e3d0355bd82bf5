package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/service"
	"github.com/swebuk/portal-api/pkg/response"
)

type downloadService interface {
	Open(ctx context.Context, token string) (*service.FileDownload, error)
}

// FileHandler streams locally stored documents behind signed tokens.
type FileHandler struct {
	service downloadService
}

// NewFileHandler constructs the handler.
func NewFileHandler(svc downloadService) *FileHandler {
	return &FileHandler{service: svc}
}

// Download godoc
// @Summary Download a stored document via signed token
// @Tags Files
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	result, err := h.service.Open(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.Size, result.ContentType, result.File, nil)
}
