// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// RecordRouteHandler defines the catalog endpoints.
type RecordRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	History(c *gin.Context)
}

// OrderRouteHandler defines the order endpoints.
type OrderRouteHandler interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
}

// RegisterRecordRoutes registers the catalog routes on group.
//
// Usage:
//
//	handler := handlers.NewRecordHandler(baseHandler, recordService)
//	RegisterRecordRoutes(api.Group("/records"), handler)
func RegisterRecordRoutes(group *gin.RouterGroup, handler RecordRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.GET("/:id/history", handler.History)
}

// RegisterOrderRoutes registers the order routes on group. Extra handlers,
// such as the idempotency middleware, run before order placement only.
func RegisterOrderRoutes(group *gin.RouterGroup, handler OrderRouteHandler, placement ...gin.HandlerFunc) {
	group.POST("", append(placement, handler.Create)...)
	group.GET("/:id", handler.Get)
}
