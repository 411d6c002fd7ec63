// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"recordshop/internal/core/apperror"
	"recordshop/internal/infrastructure/http/v1/dto"
	"recordshop/pkg/logger"
)

// Recovery turns a panic into a 500 error. The stack is logged, never sent.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				requestID := c.GetString(ctxRequestID)
				_ = c.Error(
					apperror.NewInternal(fmt.Errorf("panic: %v", err)).
						WithDetail("request_id", requestID),
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Code:    apperror.CodeInternal,
					Message: "Internal server error",
					Details: map[string]any{"request_id": requestID},
				})
			}
		}()
		c.Next()
	}
}
