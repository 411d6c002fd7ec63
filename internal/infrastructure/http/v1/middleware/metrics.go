package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records request metrics.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, d time.Duration)
}

// Metrics records one observation per request, labelled by route template
// rather than raw path.
func Metrics(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if obs == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obs.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
