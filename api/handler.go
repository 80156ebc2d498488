package api

import (
	"errors"
	"io"
	"net/http"

	"sales_aggregator/internal/events"
	"sales_aggregator/internal/metrics"
	"sales_aggregator/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxEventBody = 1 << 20

// salesHandler exposes the aggregate reactors, the daily reset job and the
// aggregate reads over HTTP.
type salesHandler struct {
	dispatcher *events.Dispatcher
	resetJob   *sales.ResetJob
	storage    sales.Storage
	logger     *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(dispatcher *events.Dispatcher, resetJob *sales.ResetJob, storage sales.Storage, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		dispatcher: dispatcher,
		resetJob:   resetJob,
		storage:    storage,
		logger:     logger,
	}
}

// handleSaleEvent handles the POST /events/sales/:kind endpoint.
func (h *salesHandler) handleSaleEvent(ctx *gin.Context) {
	kind, err := events.ParseKind(ctx.Param("kind"))
	if err != nil {
		metrics.RecordDelivery("http", string(events.AckDrop))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxEventBody))
	if err != nil {
		h.logger.Warn("failed to read event body", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	env, err := events.Decode(body)
	if err != nil {
		h.logger.Warn("rejected sale event", zap.String("kind", kind), zap.Error(err))
		metrics.RecordDelivery("http", string(events.AckDrop))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if env.MessageID == "" {
		env.MessageID = uuid.NewString()
	}

	res, ack, err := h.dispatcher.Dispatch(ctx.Request.Context(), kind, env)
	metrics.RecordDelivery("http", string(ack))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload := gin.H{
		"message_id": env.MessageID,
		"reactor":    res.Reactor,
		"user_id":    res.UserID,
		"outcome":    res.Outcome,
		"delta":      res.Delta,
	}
	if ack == events.AckRequeue {
		ctx.JSON(http.StatusServiceUnavailable, payload)
		return
	}
	ctx.JSON(http.StatusAccepted, payload)
}

// handleResetToday handles the POST /jobs/reset-today endpoint.
func (h *salesHandler) handleResetToday(ctx *gin.Context) {
	report, err := h.resetJob.Run(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"run_id":  report.RunID,
			"users":   report.Users,
			"batches": report.Batches,
		})
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// handleGetAggregate handles the GET /users/:id/aggregate endpoint.
func (h *salesHandler) handleGetAggregate(ctx *gin.Context) {
	userID := ctx.Param("id")

	agg, err := h.storage.Get(ctx.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, sales.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "aggregate not found"})
		case errors.Is(err, sales.ErrEmptyUserID):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to read aggregate", zap.String("user_id", userID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read aggregate"})
		}
		return
	}

	ctx.JSON(http.StatusOK, agg)
}
