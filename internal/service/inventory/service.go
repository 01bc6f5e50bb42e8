package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/internal/validation"
)

// Store is the stock repository surface the inventory service uses.
type Store interface {
	Create(ctx context.Context, medicine *models.Medicine) error
	FindByID(ctx context.Context, id string) (*models.Medicine, error)
	Update(ctx context.Context, medicine models.Medicine, expectedVersion int64) (*models.Medicine, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, search string) ([]models.Medicine, error)
	ListByCategory(ctx context.Context, category string) ([]models.Medicine, error)
	ListLowStock(ctx context.Context, threshold int) ([]models.Medicine, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Medicine, error)
}

// Notifier receives the sweep batch.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.Alert) error
}

// MedicineInput is the editable part of a medicine. Version is only read on update; when set,
// the update is rejected if the record changed since it was read.
type MedicineInput struct {
	Name         string       `json:"name" validate:"required"`
	Manufacturer string       `json:"manufacturer" validate:"required"`
	Category     string       `json:"category"`
	Quantity     int          `json:"quantity" validate:"gte=0"`
	Price        models.Money `json:"price"`
	ExpiryDate   time.Time    `json:"expiryDate" validate:"required"`
	Version      int64        `json:"version"`
}

// Service manages the medicine catalogue and its stock listings.
type Service struct {
	store    Store
	notifier Notifier
	policy   models.StockPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the inventory service.
func NewService(store Store, notifier Notifier, policy models.StockPolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy exposes the thresholds the listings use.
func (s *Service) Policy() models.StockPolicy {
	return s.policy
}

// List returns medicines filtered by category when given, otherwise by free-text search.
func (s *Service) List(ctx context.Context, search, category string) ([]models.Medicine, error) {
	if category = strings.TrimSpace(category); category != "" {
		return s.store.ListByCategory(ctx, category)
	}
	return s.store.List(ctx, search)
}

// Get returns one medicine.
func (s *Service) Get(ctx context.Context, id string) (*models.Medicine, error) {
	return s.store.FindByID(ctx, id)
}

// Create adds a medicine to the catalogue.
func (s *Service) Create(ctx context.Context, in MedicineInput) (*models.Medicine, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	medicine := in.toMedicine(primitive.NilObjectID)
	if err := s.store.Create(ctx, &medicine); err != nil {
		return nil, fmt.Errorf("create medicine: %w", err)
	}

	s.logger.Info("medicine created", zap.String("medicine_id", medicine.ID.Hex()), zap.String("name", medicine.Name), zap.Int("quantity", medicine.Quantity))
	return &medicine, nil
}

// Update replaces the editable fields of a medicine.
func (s *Service) Update(ctx context.Context, id string, in MedicineInput) (*models.Medicine, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return nil, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, in.toMedicine(current.ID), in.Version)
	if err != nil {
		return nil, err
	}

	s.logger.Info("medicine updated", zap.String("medicine_id", id), zap.Int64("version", updated.Version))
	return updated, nil
}

// Delete removes a medicine.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("medicine deleted", zap.String("medicine_id", id))
	return nil
}

// LowStock lists medicines at or below the low-stock threshold, sold-out ones included.
func (s *Service) LowStock(ctx context.Context) ([]models.Medicine, error) {
	return s.store.ListLowStock(ctx, s.policy.LowStockThreshold)
}

// Expiring lists medicines expiring within days from today. A non-positive days uses the policy window.
func (s *Service) Expiring(ctx context.Context, days int) ([]models.Medicine, error) {
	if days <= 0 {
		days = s.policy.ExpiryWindowDays
	}
	from, to := s.policy.ExpiryWindowFor(s.now(), days)
	return s.store.ListExpiringBetween(ctx, from, to)
}

// Sweep raises one alert batch for everything currently low, sold out or expiring and returns its size.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	low, err := s.LowStock(ctx)
	if err != nil {
		return 0, fmt.Errorf("list low stock: %w", err)
	}

	expiring, err := s.Expiring(ctx, s.policy.ExpiryWindowDays)
	if err != nil {
		return 0, fmt.Errorf("list expiring: %w", err)
	}

	now := s.now()
	alerts := []models.Alert{}
	seen := make(map[primitive.ObjectID]struct{}, len(low)+len(expiring))
	for _, m := range append(low, expiring...) {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		alerts = append(alerts, s.policy.Classify(m, now)...)
	}

	if len(alerts) == 0 {
		s.logger.Info("inventory sweep found nothing to report")
		return 0, nil
	}

	if err := s.notifier.Notify(ctx, alerts); err != nil {
		return 0, fmt.Errorf("notify sweep alerts: %w", err)
	}

	s.logger.Info("inventory sweep queued", zap.Int("alerts", len(alerts)))
	return len(alerts), nil
}

func normalize(in MedicineInput) MedicineInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	in.Category = strings.TrimSpace(in.Category)
	return in
}

func validate(in MedicineInput) error {
	problems := models.NewValidationError()
	if err := validation.Struct(in); err != nil {
		v, ok := err.(*models.ValidationError)
		if !ok {
			return err
		}
		problems = v
	}
	if in.Price.IsNegative() {
		problems.Add("price must not be negative")
	}
	return problems.OrNil()
}

func (in MedicineInput) toMedicine(id primitive.ObjectID) models.Medicine {
	return models.Medicine{
		ID:           id,
		Name:         in.Name,
		Manufacturer: in.Manufacturer,
		Category:     in.Category,
		Quantity:     in.Quantity,
		Price:        in.Price,
		ExpiryDate:   in.ExpiryDate.UTC(),
	}
}
