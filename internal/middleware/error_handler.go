package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/pkg/logger"
)

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorHandler recovers panics and renders errors attached to the gin
// context through the apperr kind mapping.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", fmt.Errorf("%v", r), map[string]interface{}{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				})
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error: "An unexpected error occurred",
					Code:  string(apperr.KindInternal),
				})
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := statusFor(apperr.KindOf(err))

		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", err, map[string]interface{}{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			})
		}

		c.JSON(status, ErrorResponse{
			Error: err.Error(),
			Code:  string(apperr.KindOf(err)),
		})
	}
}

// statusFor maps error kinds onto HTTP statuses.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUnknownServer, apperr.KindUnknownServerInTopology:
		return http.StatusNotFound
	case apperr.KindValidation, apperr.KindNotAProxy, apperr.KindNotABackend:
		return http.StatusBadRequest
	case apperr.KindAlreadyActive, apperr.KindInvalidTransition, apperr.KindPortInUse:
		return http.StatusConflict
	case apperr.KindNotRunning:
		return http.StatusConflict
	case apperr.KindDiscoveryTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindRouterRejected, apperr.KindConfigWriteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError attaches err to the context for ErrorHandler to render.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
