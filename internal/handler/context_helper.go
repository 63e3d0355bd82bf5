package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/swebuk/portal-api/internal/middleware"
	"github.com/swebuk/portal-api/internal/service"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/response"
)

// currentUserID returns the authenticated user id or "" for anonymous calls.
func currentUserID(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// requireUser writes 401 and returns false when the request carries no claims.
func requireUser(c *gin.Context) (string, bool) {
	id := currentUserID(c)
	if id == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func pageQuery(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formUpload opens the named multipart file. It returns nil when the field
// is absent; the caller must run the returned close func.
func formUpload(c *gin.Context, field string) (*service.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, func() {}, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, func() {}, appErrors.Wrap(err, appErrors.ErrFileTooLarge.Code, http.StatusRequestEntityTooLarge, appErrors.ErrFileTooLarge.Message)
		}
		return nil, func() {}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart upload")
	}
	return openUpload(header)
}

func openUpload(header *multipart.FileHeader) (*service.Upload, func(), error) {
	file, err := header.Open()
	if err != nil {
		return nil, func() {}, appErrors.Internal(err, "failed to read upload")
	}
	upload := &service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      file,
	}
	return upload, func() { _ = file.Close() }, nil
}

func optionalForm(c *gin.Context, field string) *string {
	value, ok := c.GetPostForm(field)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func writeExport(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
