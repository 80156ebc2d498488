package api

import (
	"net/http"

	"sales_aggregator/internal/events"
	"sales_aggregator/internal/metrics"
	"sales_aggregator/internal/sales"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Storage    sales.Storage
	Dispatcher *events.Dispatcher
	ResetJob   *sales.ResetJob
	Logger     *zap.Logger
}

// InitRoutes registers the sale event webhook, the manual reset trigger, the
// aggregate read, and the health and metrics endpoints on the given engine.
func InitRoutes(e *gin.Engine, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	salesHandler := NewSalesHandler(deps.Dispatcher, deps.ResetJob, deps.Storage, logger)

	e.POST("/events/sales/:kind", salesHandler.handleSaleEvent)
	e.POST("/jobs/reset-today", salesHandler.handleResetToday)
	e.GET("/users/:id/aggregate", salesHandler.handleGetAggregate)

	e.GET("/metrics", gin.WrapH(metrics.Handler()))
	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
