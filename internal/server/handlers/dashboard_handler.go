package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

const queryDateLayout = "2006-01-02"

// ReportingService is what the dashboard routes need.
type ReportingService interface {
	Stats(ctx context.Context, now time.Time) (*models.DashboardStats, error)
	IncomeBetween(ctx context.Context, startDate, endDate time.Time) (models.IncomeSummary, error)
}

// DashboardHandler serves the dashboard routes.
type DashboardHandler struct {
	svc    ReportingService
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboardHandler constructs the dashboard handler.
func NewDashboardHandler(svc ReportingService, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{svc: svc, logger: logger, now: time.Now}
}

// Stats returns the dashboard figures.
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), h.now())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Income sums bills between ?startDate= and ?endDate=, both inclusive, formatted YYYY-MM-DD.
func (h *DashboardHandler) Income(c *gin.Context) {
	start, err := time.Parse(queryDateLayout, c.Query("startDate"))
	if err != nil {
		badRequest(c, h.logger, "startDate must be formatted YYYY-MM-DD", err)
		return
	}
	end, err := time.Parse(queryDateLayout, c.Query("endDate"))
	if err != nil {
		badRequest(c, h.logger, "endDate must be formatted YYYY-MM-DD", err)
		return
	}

	summary, err := h.svc.IncomeBetween(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
