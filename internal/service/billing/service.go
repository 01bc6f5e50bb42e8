package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

// PatientLedger is the part of the patient store billing writes to.
type PatientLedger interface {
	FindByPatientID(ctx context.Context, patientID string) (*models.Patient, error)
	AppendBill(ctx context.Context, patientID string, bill models.Bill) (*models.Patient, error)
	DeleteBill(ctx context.Context, patientID, billID string) error
}

// StockRepository is the part of the inventory store billing reads and decrements.
type StockRepository interface {
	FindByID(ctx context.Context, id string) (*models.Medicine, error)
	Decrement(ctx context.Context, id string, amount int) (*models.Medicine, error)
	Increment(ctx context.Context, id string, amount int) error
	DeleteIfZero(ctx context.Context, id string) (bool, error)
}

// TransactionRunner scopes the append-and-decrement writes. Transactional reports whether a failed
// scope is undone by the store itself; otherwise billing compensates by hand.
type TransactionRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Transactional() bool
}

// Notifier receives every alert raised by one bill in a single call.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.Alert) error
}

// Item is one requested medicine and quantity.
type Item struct {
	MedicineID string `json:"medicineId" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gt=0"`
}

// Request is the billing transaction input.
type Request struct {
	PatientID string `json:"patientId" binding:"required"`
	Items     []Item `json:"items" binding:"required,min=1,dive"`
	Doctor    string `json:"doctor"`
}

// Result is the billing transaction output.
type Result struct {
	Patient *models.Patient `json:"patient"`
	Bill    models.Bill     `json:"bill"`
	Alerts  []models.Alert  `json:"alerts"`
}

// Options tunes alert thresholds and the sold-out behaviour.
type Options struct {
	Policy models.StockPolicy
	// RemoveSoldOut deletes a medicine whose quantity reaches zero through billing.
	RemoveSoldOut bool
}

// Service runs billing transactions: validate everything, append the bill, decrement stock,
// then hand the resulting alerts to the notifier.
type Service struct {
	patients      PatientLedger
	stock         StockRepository
	tx            TransactionRunner
	notifier      Notifier
	policy        models.StockPolicy
	removeSoldOut bool
	logger        *zap.Logger
	now           func() time.Time
	newID         func() primitive.ObjectID
}

// NewService wires the billing service. A nil TransactionRunner runs the writes directly.
func NewService(patients PatientLedger, stock StockRepository, tx TransactionRunner, notifier Notifier, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = directRunner{}
	}
	return &Service{
		patients:      patients,
		stock:         stock,
		tx:            tx,
		notifier:      notifier,
		policy:        opts.Policy,
		removeSoldOut: opts.RemoveSoldOut,
		logger:        logger,
		now:           time.Now,
		newID:         primitive.NewObjectID,
	}
}

// CreateBill bills a patient for the requested items. Validation failures, unknown patients or
// medicines and short stock are reported before anything is written.
func (s *Service) CreateBill(ctx context.Context, req Request) (*Result, error) {
	req = normalize(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	if _, err := s.patients.FindByPatientID(ctx, req.PatientID); err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	records, err := s.resolveStock(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	if err := checkAvailability(req.Items, records); err != nil {
		return nil, err
	}

	bill := s.buildBill(req, records)

	var (
		patient     *models.Patient
		decremented []models.Medicine
	)
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var commitErr error
		patient, decremented, commitErr = s.commit(ctx, req, bill)
		return commitErr
	})
	if err != nil {
		return nil, err
	}

	alerts := s.settle(ctx, decremented)
	s.notify(ctx, alerts)

	s.logger.Info("bill created",
		zap.String("patient_id", req.PatientID),
		zap.String("bill_id", bill.ID.Hex()),
		zap.Int("items", len(bill.Items)),
		zap.String("total", bill.TotalAmount.String()),
		zap.Int("alerts", len(alerts)))

	return &Result{Patient: patient, Bill: bill, Alerts: alerts}, nil
}

func normalize(req Request) Request {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.Doctor = strings.TrimSpace(req.Doctor)

	items := make([]Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = Item{MedicineID: strings.TrimSpace(item.MedicineID), Quantity: item.Quantity}
	}
	req.Items = items
	return req
}

func validate(req Request) error {
	v := &models.ValidationError{}

	if req.PatientID == "" {
		v.Add("patientId is required")
	}
	if len(req.Items) == 0 {
		v.Add("at least one item is required")
	}
	for i, item := range req.Items {
		if item.MedicineID == "" {
			v.Add("items[%d].medicineId is required", i)
		}
		if item.Quantity <= 0 {
			v.Add("items[%d].quantity must be positive, got %d", i, item.Quantity)
		}
	}

	return v.OrNil()
}

// resolveStock fetches every distinct medicine concurrently.
func (s *Service) resolveStock(ctx context.Context, items []Item) (map[string]models.Medicine, error) {
	ids := distinctMedicineIDs(items)
	found := make([]models.Medicine, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			m, err := s.stock.FindByID(gctx, id)
			if err != nil {
				return fmt.Errorf("resolve medicine %s: %w", id, err)
			}
			found[i] = *m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make(map[string]models.Medicine, len(ids))
	for i, id := range ids {
		records[id] = found[i]
	}
	return records, nil
}

// checkAvailability sums repeated medicines so a bill cannot overdraw one record through several lines.
func checkAvailability(items []Item, records map[string]models.Medicine) error {
	requested := make(map[string]int, len(records))
	for _, item := range items {
		requested[item.MedicineID] += item.Quantity
	}

	for _, id := range distinctMedicineIDs(items) {
		m := records[id]
		if requested[id] > m.Quantity {
			return &models.InsufficientStockError{
				MedicineID:   id,
				MedicineName: m.Name,
				Available:    m.Quantity,
				Requested:    requested[id],
			}
		}
	}
	return nil
}

func (s *Service) buildBill(req Request, records map[string]models.Medicine) models.Bill {
	bill := models.Bill{
		ID:        s.newID(),
		Items:     make([]models.LineItem, 0, len(req.Items)),
		Status:    models.BillPaid,
		Doctor:    req.Doctor,
		CreatedAt: s.now().UTC(),
	}

	for _, item := range req.Items {
		m := records[item.MedicineID]
		line := models.NewLineItem(m.Name, item.Quantity, m.Price)
		bill.Items = append(bill.Items, line)
		bill.TotalAmount = bill.TotalAmount.Plus(line.Total)
	}
	return bill
}

// commit appends the bill and decrements each line in order. When a decrement loses a race outside
// a real transaction, the earlier decrements and the bill are rolled back before the error is returned;
// inside one, the abort discards them.
func (s *Service) commit(ctx context.Context, req Request, bill models.Bill) (*models.Patient, []models.Medicine, error) {
	patient, err := s.patients.AppendBill(ctx, req.PatientID, bill)
	if err != nil {
		return nil, nil, fmt.Errorf("append bill: %w", err)
	}

	decremented := make([]models.Medicine, 0, len(req.Items))
	for i, item := range req.Items {
		m, err := s.stock.Decrement(ctx, item.MedicineID, item.Quantity)
		if err != nil {
			if !s.tx.Transactional() {
				s.compensate(ctx, req.PatientID, bill.ID, req.Items[:i])
			}
			return nil, nil, fmt.Errorf("decrement medicine %s: %w", item.MedicineID, err)
		}
		decremented = append(decremented, *m)
	}

	return patient, decremented, nil
}

func (s *Service) compensate(ctx context.Context, patientID string, billID primitive.ObjectID, applied []Item) {
	// Rollback must run even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		if err := s.stock.Increment(ctx, item.MedicineID, item.Quantity); err != nil {
			s.logger.Error("failed to restore stock after aborted bill",
				zap.String("medicine_id", item.MedicineID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
		}
	}

	if err := s.patients.DeleteBill(ctx, patientID, billID.Hex()); err != nil {
		s.logger.Error("failed to remove aborted bill",
			zap.String("patient_id", patientID),
			zap.String("bill_id", billID.Hex()),
			zap.Error(err))
	}
}

// settle classifies the final state of every touched medicine and removes sold-out records.
func (s *Service) settle(ctx context.Context, decremented []models.Medicine) []models.Alert {
	now := s.now()
	alerts := []models.Alert{}

	for _, m := range latestState(decremented) {
		alerts = append(alerts, s.policy.Classify(m, now)...)

		if !s.removeSoldOut || !s.policy.IsOutOfStock(m) {
			continue
		}
		removed, err := s.stock.DeleteIfZero(ctx, m.ID.Hex())
		if err != nil {
			s.logger.Warn("failed to remove sold out medicine", zap.String("medicine_id", m.ID.Hex()), zap.Error(err))
			continue
		}
		if removed {
			s.logger.Info("sold out medicine removed", zap.String("medicine_id", m.ID.Hex()), zap.String("name", m.Name))
		}
	}

	return alerts
}

func (s *Service) notify(ctx context.Context, alerts []models.Alert) {
	if len(alerts) == 0 || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, alerts); err != nil {
		s.logger.Error("alert notification failed", zap.Int("alerts", len(alerts)), zap.Error(err))
	}
}

// latestState keeps the last snapshot per medicine, in first-seen order.
func latestState(decremented []models.Medicine) []models.Medicine {
	index := make(map[primitive.ObjectID]int, len(decremented))
	out := make([]models.Medicine, 0, len(decremented))

	for _, m := range decremented {
		if i, ok := index[m.ID]; ok {
			out[i] = m
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

func distinctMedicineIDs(items []Item) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.MedicineID]; ok {
			continue
		}
		seen[item.MedicineID] = struct{}{}
		ids = append(ids, item.MedicineID)
	}
	return ids
}

type directRunner struct{}

func (directRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (directRunner) Transactional() bool { return false }
