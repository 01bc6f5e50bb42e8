package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/internal/service/patients"
)

// PatientService is what the patient routes need.
type PatientService interface {
	Register(ctx context.Context, in patients.RegisterInput) (*models.Patient, error)
	Lookup(ctx context.Context, query string) (*models.Patient, error)
	Search(ctx context.Context, query string) ([]models.Patient, error)
	List(ctx context.Context) ([]models.Patient, error)
	History(ctx context.Context, patientID string) (*models.PatientHistory, error)
	DeleteBill(ctx context.Context, patientID, billID string) error
}

// PatientHandler serves the patient routes.
type PatientHandler struct {
	svc    PatientService
	logger *zap.Logger
}

// NewPatientHandler constructs the patient handler.
func NewPatientHandler(svc PatientService, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{svc: svc, logger: logger}
}

// Register creates a patient.
func (h *PatientHandler) Register(c *gin.Context) {
	var in patients.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid patient payload", err)
		return
	}

	patient, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

// List returns recent patients.
func (h *PatientHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Search matches patients by partial id, name or contact.
func (h *PatientHandler) Search(c *gin.Context) {
	list, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Lookup finds one patient by exact id or contact.
func (h *PatientHandler) Lookup(c *gin.Context) {
	patient, err := h.svc.Lookup(c.Request.Context(), c.Query("search"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

// History returns a patient's bills newest first.
func (h *PatientHandler) History(c *gin.Context) {
	history, err := h.svc.History(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// DeleteBill removes one bill from a patient.
func (h *PatientHandler) DeleteBill(c *gin.Context) {
	if err := h.svc.DeleteBill(c.Request.Context(), c.Param("patientId"), c.Param("billId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
