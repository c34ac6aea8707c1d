package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payment-relay/internal/models"
	"payment-relay/internal/service"
)

// SummaryStore provides the per-tier aggregation for /payments-summary.
type SummaryStore interface {
	GetSummary(ctx context.Context) (*models.Summary, error)
}

type PaymentHandler struct {
	payments *service.PaymentService
	enqueue  *service.EnqueueService
	summary  SummaryStore
	logger   *zap.Logger
}

func NewPaymentHandler(payments *service.PaymentService, enqueue *service.EnqueueService, summary SummaryStore, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		enqueue:  enqueue,
		summary:  summary,
		logger:   logger,
	}
}

// CreatePayment handles POST /payments (synchronous path)
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.payments.CreateSync(c.Request.Context(), req.CorrelationID, req.Amount)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": vErr.Messages})
			return
		}
		h.logger.Error("failed to create payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment"})
		return
	}

	status := http.StatusCreated
	if !result.NewlyCreated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"payment":        result.Payment,
		"isNewlyCreated": result.NewlyCreated,
	})
}

// CreatePaymentAsync handles POST /payments/async
func (h *PaymentHandler) CreatePaymentAsync(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.enqueue.EnqueueCreation(c.Request.Context(), req.CorrelationID, req.Amount)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": vErr.Messages})
			return
		}
		h.logger.Error("failed to enqueue payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept payment"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":         result.JobID,
		"correlationId": result.CorrelationID,
	})
}

// GetPayment handles GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("failed to fetch payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch payment"})
		return
	}
	if payment == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// GetSummary handles GET /payments-summary
func (h *PaymentHandler) GetSummary(c *gin.Context) {
	summary, err := h.summary.GetSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to build summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
