package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recordshop/internal/core/apperror"
	"recordshop/internal/infrastructure/http/v1/dto"
	"recordshop/pkg/logger"
)

// ErrorHandler turns the last error attached to the gin context into the
// JSON error body. Causes are logged and never reach the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		var body dto.ErrorResponse

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = dto.ErrorResponse{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = dto.ErrorResponse{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": c.GetString(ctxRequestID)},
			}
		}

		FailIdempotency(c, status, body)
		c.JSON(status, body)
	}
}
