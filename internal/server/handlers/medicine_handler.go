package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/internal/service/inventory"
)

// InventoryService is what the medicine routes need.
type InventoryService interface {
	List(ctx context.Context, search, category string) ([]models.Medicine, error)
	Create(ctx context.Context, in inventory.MedicineInput) (*models.Medicine, error)
	Update(ctx context.Context, id string, in inventory.MedicineInput) (*models.Medicine, error)
	Delete(ctx context.Context, id string) error
	LowStock(ctx context.Context) ([]models.Medicine, error)
	Expiring(ctx context.Context, days int) ([]models.Medicine, error)
}

// MedicineHandler serves the medicine routes.
type MedicineHandler struct {
	svc    InventoryService
	logger *zap.Logger
}

// NewMedicineHandler constructs the medicine handler.
func NewMedicineHandler(svc InventoryService, logger *zap.Logger) *MedicineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicineHandler{svc: svc, logger: logger}
}

func (h *MedicineHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Query("search"), c.Query("category"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *MedicineHandler) Create(c *gin.Context) {
	var in inventory.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid medicine payload", err)
		return
	}

	medicine, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, medicine)
}

func (h *MedicineHandler) Update(c *gin.Context) {
	var in inventory.MedicineInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid medicine payload", err)
		return
	}

	medicine, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, medicine)
}

func (h *MedicineHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LowStock lists medicines at or below the low-stock threshold.
func (h *MedicineHandler) LowStock(c *gin.Context) {
	list, err := h.svc.LowStock(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Expiring lists medicines expiring within ?days= (default 30).
func (h *MedicineHandler) Expiring(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = n
	}

	list, err := h.svc.Expiring(c.Request.Context(), days)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
