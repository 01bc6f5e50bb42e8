package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/service/billing"
)

// BillingService runs the billing transaction.
type BillingService interface {
	CreateBill(ctx context.Context, req billing.Request) (*billing.Result, error)
}

// BillingHandler serves POST /api/bills.
type BillingHandler struct {
	svc    BillingService
	logger *zap.Logger
}

// NewBillingHandler constructs the billing handler.
func NewBillingHandler(svc BillingService, logger *zap.Logger) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{svc: svc, logger: logger}
}

// Create bills a patient and answers with the updated patient, the new bill and any alerts raised.
func (h *BillingHandler) Create(c *gin.Context) {
	var req billing.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid bill payload", err)
		return
	}

	result, err := h.svc.CreateBill(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
