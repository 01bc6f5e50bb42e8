package patients

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/internal/validation"
)

const (
	defaultListLimit   = 100
	defaultSearchLimit = 10
	generatedIDTries   = 3
)

// Store is the patient ledger surface the patient service uses.
type Store interface {
	Create(ctx context.Context, patient *models.Patient) error
	FindByIDOrContact(ctx context.Context, query string) (*models.Patient, error)
	FindByPatientID(ctx context.Context, patientID string) (*models.Patient, error)
	List(ctx context.Context, limit int64) ([]models.Patient, error)
	Search(ctx context.Context, query string, limit int64) ([]models.Patient, error)
	DeleteBill(ctx context.Context, patientID, billID string) error
}

// RegisterInput carries a new patient. PatientID is generated when empty.
type RegisterInput struct {
	PatientID string `json:"patientId"`
	Name      string `json:"name" validate:"required"`
	Age       int    `json:"age" validate:"gt=0,max=150"`
	Contact   string `json:"contact" validate:"required,len=10,number"`
	Email     string `json:"email" validate:"omitempty,email"`
	Address   string `json:"address"`
}

// Service registers patients and serves their billing history.
type Service struct {
	store  Store
	logger *zap.Logger
	newID  func() string
}

// NewService wires the patient service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, newID: generatePatientID}
}

// Register validates and stores a new patient. Duplicate patient ids or contacts are a conflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Patient, error) {
	in = normalize(in)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	generated := in.PatientID == ""
	attempts := 1
	if generated {
		attempts = generatedIDTries
	}

	var err error
	for i := 0; i < attempts; i++ {
		patient := &models.Patient{
			PatientID: in.PatientID,
			Name:      in.Name,
			Age:       in.Age,
			Contact:   in.Contact,
			Email:     in.Email,
			Address:   in.Address,
			Bills:     []models.Bill{},
		}
		if generated {
			patient.PatientID = s.newID()
		}

		err = s.store.Create(ctx, patient)
		if err == nil {
			s.logger.Info("patient registered", zap.String("patient_id", patient.PatientID))
			return patient, nil
		}
		// Only a clash on a generated id is worth another draw.
		if !generated || !errors.Is(err, models.ErrConflict) || strings.Contains(err.Error(), "contact") {
			break
		}
	}
	return nil, err
}

// Lookup finds a patient by exact patient id or contact number.
func (s *Service) Lookup(ctx context.Context, query string) (*models.Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("search term is required")
	}
	return s.store.FindByIDOrContact(ctx, query)
}

// Search returns up to ten patients whose id, name or contact contains the query.
func (s *Service) Search(ctx context.Context, query string) ([]models.Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Patient{}, nil
	}
	return s.store.Search(ctx, query, defaultSearchLimit)
}

// List returns the most recently registered patients.
func (s *Service) List(ctx context.Context) ([]models.Patient, error) {
	return s.store.List(ctx, defaultListLimit)
}

// History returns the patient's bills newest first together with the amount billed overall.
func (s *Service) History(ctx context.Context, patientID string) (*models.PatientHistory, error) {
	patient, err := s.store.FindByPatientID(ctx, strings.TrimSpace(patientID))
	if err != nil {
		return nil, err
	}

	return &models.PatientHistory{
		PatientID:   patient.PatientID,
		Name:        patient.Name,
		Age:         patient.Age,
		Contact:     patient.Contact,
		Bills:       patient.BillsNewestFirst(),
		TotalBilled: patient.TotalBilled(),
	}, nil
}

// DeleteBill removes one bill. Stock is not restored.
func (s *Service) DeleteBill(ctx context.Context, patientID, billID string) error {
	if err := s.store.DeleteBill(ctx, patientID, billID); err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	s.logger.Info("bill deleted", zap.String("patient_id", patientID), zap.String("bill_id", billID))
	return nil
}

func normalize(in RegisterInput) RegisterInput {
	in.PatientID = strings.TrimSpace(in.PatientID)
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

func generatePatientID() string {
	return fmt.Sprintf("PAT%06d", rand.IntN(1_000_000))
}
