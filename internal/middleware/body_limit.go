package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/swebuk/portal-api/pkg/errors"
	"github.com/swebuk/portal-api/pkg/response"
)

// LimitBody caps the request body at limit bytes. A declared length over the
// limit is refused before any read; otherwise reads past the limit fail with
// *http.MaxBytesError. A non-positive limit disables the check.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			response.Error(c, appErrors.ErrFileTooLarge)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
