package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type memoryLedger struct {
	mu       sync.Mutex
	patients map[string]*models.Patient
}

var _ PatientLedger = (*memoryLedger)(nil)

func newMemoryLedger(patients ...models.Patient) *memoryLedger {
	l := &memoryLedger{patients: map[string]*models.Patient{}}
	for i := range patients {
		p := patients[i]
		l.patients[p.PatientID] = &p
	}
	return l
}

func (l *memoryLedger) FindByPatientID(_ context.Context, patientID string) (*models.Patient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
	}
	return clonePatient(p), nil
}

func (l *memoryLedger) AppendBill(_ context.Context, patientID string, bill models.Bill) (*models.Patient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
	}
	p.Bills = append(p.Bills, bill)
	return clonePatient(p), nil
}

func (l *memoryLedger) DeleteBill(_ context.Context, patientID, billID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.patients[patientID]
	if !ok {
		return fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
	}
	kept := p.Bills[:0]
	for _, b := range p.Bills {
		if b.ID.Hex() != billID {
			kept = append(kept, b)
		}
	}
	p.Bills = kept
	return nil
}

func (l *memoryLedger) bills(patientID string) []models.Bill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Bill(nil), l.patients[patientID].Bills...)
}

func clonePatient(p *models.Patient) *models.Patient {
	c := *p
	c.Bills = append([]models.Bill(nil), p.Bills...)
	return &c
}

type memoryStock struct {
	mu         sync.Mutex
	medicines  map[string]*models.Medicine
	increments int

	// beforeDecrement runs without the lock held, letting a test change stock between check and write.
	beforeDecrement func(id string)
}

var _ StockRepository = (*memoryStock)(nil)

func newMemoryStock(medicines ...models.Medicine) *memoryStock {
	s := &memoryStock{medicines: map[string]*models.Medicine{}}
	for i := range medicines {
		m := medicines[i]
		s.medicines[m.ID.Hex()] = &m
	}
	return s
}

func (s *memoryStock) FindByID(_ context.Context, id string) (*models.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	c := *m
	return &c, nil
}

func (s *memoryStock) Decrement(_ context.Context, id string, amount int) (*models.Medicine, error) {
	if s.beforeDecrement != nil {
		s.beforeDecrement(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	if m.Quantity < amount {
		return nil, &models.InsufficientStockError{MedicineID: id, MedicineName: m.Name, Available: m.Quantity, Requested: amount}
	}
	m.Quantity -= amount
	m.Version++
	c := *m
	return &c, nil
}

func (s *memoryStock) Increment(_ context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[id]
	if !ok {
		return fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	s.increments++
	m.Quantity += amount
	m.Version++
	return nil
}

func (s *memoryStock) DeleteIfZero(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[id]
	if !ok || m.Quantity != 0 {
		return false, nil
	}
	delete(s.medicines, id)
	return true, nil
}

func (s *memoryStock) set(id string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines[id].Quantity = qty
}

func (s *memoryStock) quantity(t *testing.T, id string) int {
	t.Helper()
	m, err := s.FindByID(context.Background(), id)
	require.NoError(t, err)
	return m.Quantity
}

type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]models.Alert
	err     error
}

var _ Notifier = (*recordingNotifier)(nil)

func (n *recordingNotifier) Notify(_ context.Context, alerts []models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, alerts)
	return n.err
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.batches)
}

type countingRunner struct {
	calls         int
	transactional bool
}

func (r *countingRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	return fn(ctx)
}

func (r *countingRunner) Transactional() bool { return r.transactional }

type fixture struct {
	svc      *Service
	ledger   *memoryLedger
	stock    *memoryStock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts Options, medicines ...models.Medicine) fixture {
	t.Helper()

	ledger := newMemoryLedger(models.Patient{PatientID: "PT001", Name: "Asha", Age: 34, Contact: "9000000001"})
	stock := newMemoryStock(medicines...)
	notifier := &recordingNotifier{}

	svc := NewService(ledger, stock, nil, notifier, opts, nil)
	svc.now = func() time.Time { return fixedNow }

	return fixture{svc: svc, ledger: ledger, stock: stock, notifier: notifier}
}

func defaultOptions() Options {
	return Options{Policy: models.DefaultStockPolicy(), RemoveSoldOut: true}
}

func medicine(name string, qty int, price string) models.Medicine {
	p, err := models.MoneyFromString(price)
	if err != nil {
		panic(err)
	}
	return models.Medicine{
		ID:         primitive.NewObjectID(),
		Name:       name,
		Quantity:   qty,
		Price:      p,
		ExpiryDate: fixedNow.AddDate(1, 0, 0),
	}
}

func alertTypes(alerts []models.Alert) []models.AlertType {
	types := make([]models.AlertType, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.Type)
	}
	return types
}

func TestCreateBill_SingleItemProducesLowStockAlert(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	f := newFixture(t, defaultOptions(), aspirin)

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 5}},
	})
	require.NoError(t, err)

	assert.Equal(t, "25", res.Bill.TotalAmount.String())
	assert.Equal(t, models.BillPaid, res.Bill.Status)
	require.Len(t, res.Bill.Items, 1)
	assert.Equal(t, "Aspirin", res.Bill.Items[0].MedicineName)
	assert.Equal(t, 7, f.stock.quantity(t, aspirin.ID.Hex()))

	require.Len(t, res.Patient.Bills, 1)
	assert.Equal(t, res.Bill.ID, res.Patient.Bills[0].ID)

	assert.Equal(t, []models.AlertType{models.AlertLowStock}, alertTypes(res.Alerts))
	require.Equal(t, 1, f.notifier.calls())
	assert.Equal(t, res.Alerts, f.notifier.batches[0])
}

func TestCreateBill_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	f := newFixture(t, defaultOptions(), aspirin)

	_, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 20}},
	})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Aspirin", stockErr.MedicineName)
	assert.Equal(t, 12, stockErr.Available)
	assert.Equal(t, 20, stockErr.Requested)

	assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))
	assert.Empty(t, f.ledger.bills("PT001"))
	assert.Zero(t, f.notifier.calls())
}

func TestCreateBill_TotalsAreExactSums(t *testing.T) {
	syrup := medicine("Cough Syrup", 40, "2.50")
	tabs := medicine("Paracetamol", 100, "0.10")
	f := newFixture(t, defaultOptions(), syrup, tabs)

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Doctor:    "  Dr. Rao ",
		Items: []Item{
			{MedicineID: syrup.ID.Hex(), Quantity: 3},
			{MedicineID: tabs.ID.Hex(), Quantity: 3},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Bill.Items, 2)
	assert.Equal(t, "7.5", res.Bill.Items[0].Total.String())
	assert.Equal(t, "0.3", res.Bill.Items[1].Total.String())
	assert.Equal(t, "7.8", res.Bill.TotalAmount.String())
	assert.Equal(t, "Dr. Rao", res.Bill.Doctor)
	assert.Equal(t, fixedNow, res.Bill.CreatedAt)

	assert.Equal(t, 37, f.stock.quantity(t, syrup.ID.Hex()))
	assert.Equal(t, 97, f.stock.quantity(t, tabs.ID.Hex()))
	assert.Empty(t, res.Alerts)
	assert.Zero(t, f.notifier.calls())
}

func TestCreateBill_AlertTransitions(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		buy       int
		want      []models.AlertType
		wantGone  bool
		removeOut bool
	}{
		{name: "healthy to low", stock: 15, buy: 7, want: []models.AlertType{models.AlertLowStock}, removeOut: true},
		{name: "threshold itself is low", stock: 11, buy: 1, want: []models.AlertType{models.AlertLowStock}, removeOut: true},
		{name: "healthy stays healthy", stock: 30, buy: 5, want: []models.AlertType{}, removeOut: true},
		{name: "sold out is removed", stock: 5, buy: 5, want: []models.AlertType{models.AlertOutOfStock}, wantGone: true, removeOut: true},
		{name: "sold out is kept when removal is off", stock: 5, buy: 5, want: []models.AlertType{models.AlertOutOfStock}, removeOut: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			med := medicine("Amoxicillin", tt.stock, "12")
			opts := defaultOptions()
			opts.RemoveSoldOut = tt.removeOut
			f := newFixture(t, opts, med)

			res, err := f.svc.CreateBill(context.Background(), Request{
				PatientID: "PT001",
				Items:     []Item{{MedicineID: med.ID.Hex(), Quantity: tt.buy}},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, alertTypes(res.Alerts))

			_, findErr := f.stock.FindByID(context.Background(), med.ID.Hex())
			if tt.wantGone {
				assert.ErrorIs(t, findErr, models.ErrNotFound)
				return
			}
			require.NoError(t, findErr)
			assert.Equal(t, tt.stock-tt.buy, f.stock.quantity(t, med.ID.Hex()))
		})
	}
}

func TestCreateBill_ExpiringAlertIndependentOfQuantity(t *testing.T) {
	insulin := medicine("Insulin", 200, "30")
	insulin.ExpiryDate = fixedNow.AddDate(0, 0, 10)
	f := newFixture(t, defaultOptions(), insulin)

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: insulin.ID.Hex(), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.AlertType{models.AlertExpiring}, alertTypes(res.Alerts))
}

func TestCreateBill_LowAndExpiringTogether(t *testing.T) {
	insulin := medicine("Insulin", 12, "30")
	insulin.ExpiryDate = fixedNow.AddDate(0, 0, 30)
	f := newFixture(t, defaultOptions(), insulin)

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: insulin.ID.Hex(), Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.AlertType{models.AlertLowStock, models.AlertExpiring}, alertTypes(res.Alerts))
	assert.Equal(t, 1, f.notifier.calls())
}

func TestCreateBill_RepeatedMedicineIsSummed(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	f := newFixture(t, defaultOptions(), aspirin)

	_, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items: []Item{
			{MedicineID: aspirin.ID.Hex(), Quantity: 7},
			{MedicineID: aspirin.ID.Hex(), Quantity: 7},
		},
	})
	var stockErr *models.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 14, stockErr.Requested)
	assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items: []Item{
			{MedicineID: aspirin.ID.Hex(), Quantity: 1},
			{MedicineID: aspirin.ID.Hex(), Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Bill.Items, 2)
	assert.Equal(t, "15", res.Bill.TotalAmount.String())
	assert.Equal(t, 9, f.stock.quantity(t, aspirin.ID.Hex()))
	assert.Equal(t, []models.AlertType{models.AlertLowStock}, alertTypes(res.Alerts))
}

func TestCreateBill_Validation(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")

	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing patient", req: Request{Items: []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 1}}}},
		{name: "no items", req: Request{PatientID: "PT001"}},
		{name: "zero quantity", req: Request{PatientID: "PT001", Items: []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 0}}}},
		{name: "negative quantity", req: Request{PatientID: "PT001", Items: []Item{{MedicineID: aspirin.ID.Hex(), Quantity: -2}}}},
		{name: "blank medicine", req: Request{PatientID: "PT001", Items: []Item{{MedicineID: "  ", Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, defaultOptions(), aspirin)

			_, err := f.svc.CreateBill(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))
			assert.Empty(t, f.ledger.bills("PT001"))
		})
	}
}

func TestCreateBill_UnknownReferences(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")

	t.Run("patient", func(t *testing.T) {
		f := newFixture(t, defaultOptions(), aspirin)

		_, err := f.svc.CreateBill(context.Background(), Request{
			PatientID: "PT404",
			Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 1}},
		})
		require.ErrorIs(t, err, models.ErrNotFound)
		assert.Contains(t, err.Error(), "PT404")
		assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))
	})

	t.Run("medicine", func(t *testing.T) {
		f := newFixture(t, defaultOptions(), aspirin)
		missing := primitive.NewObjectID().Hex()

		_, err := f.svc.CreateBill(context.Background(), Request{
			PatientID: "PT001",
			Items: []Item{
				{MedicineID: aspirin.ID.Hex(), Quantity: 1},
				{MedicineID: missing, Quantity: 1},
			},
		})
		require.ErrorIs(t, err, models.ErrNotFound)
		assert.Contains(t, err.Error(), missing)
		assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))
		assert.Empty(t, f.ledger.bills("PT001"))
	})
}

func TestCreateBill_LostRaceRollsBack(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	cetirizine := medicine("Cetirizine", 8, "3")
	f := newFixture(t, defaultOptions(), aspirin, cetirizine)

	// Another bill takes the cetirizine after validation passed.
	f.stock.beforeDecrement = func(id string) {
		if id == cetirizine.ID.Hex() {
			f.stock.set(id, 1)
		}
	}

	_, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items: []Item{
			{MedicineID: aspirin.ID.Hex(), Quantity: 4},
			{MedicineID: cetirizine.ID.Hex(), Quantity: 2},
		},
	})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	assert.Equal(t, 12, f.stock.quantity(t, aspirin.ID.Hex()))
	assert.Equal(t, 1, f.stock.quantity(t, cetirizine.ID.Hex()))
	assert.Empty(t, f.ledger.bills("PT001"))
	assert.Zero(t, f.notifier.calls())
}

func TestCreateBill_LostRaceInsideTransactionLeavesRollbackToStore(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	cetirizine := medicine("Cetirizine", 8, "3")
	ledger := newMemoryLedger(models.Patient{PatientID: "PT001", Name: "Asha", Contact: "9000000001"})
	stock := newMemoryStock(aspirin, cetirizine)
	runner := &countingRunner{transactional: true}
	notifier := &recordingNotifier{}
	svc := NewService(ledger, stock, runner, notifier, defaultOptions(), nil)

	stock.beforeDecrement = func(id string) {
		if id == cetirizine.ID.Hex() {
			stock.set(id, 1)
		}
	}

	_, err := svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items: []Item{
			{MedicineID: aspirin.ID.Hex(), Quantity: 4},
			{MedicineID: cetirizine.ID.Hex(), Quantity: 2},
		},
	})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	// The aborted transaction discards these writes; billing must not issue its own.
	assert.Zero(t, stock.increments)
	assert.Len(t, ledger.bills("PT001"), 1)
	assert.Equal(t, 8, stock.quantity(t, aspirin.ID.Hex()))
	assert.Zero(t, notifier.calls())
}

func TestCreateBill_NotifierFailureDoesNotFailBill(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	f := newFixture(t, defaultOptions(), aspirin)
	f.notifier.err = errors.New("queue full")

	res, err := f.svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 1)
	assert.Len(t, f.ledger.bills("PT001"), 1)
}

func TestCreateBill_UsesTransactionRunner(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	runner := &countingRunner{}
	ledger := newMemoryLedger(models.Patient{PatientID: "PT001", Name: "Asha", Contact: "9000000001"})

	svc := NewService(ledger, newMemoryStock(aspirin), runner, &recordingNotifier{}, defaultOptions(), nil)

	_, err := svc.CreateBill(context.Background(), Request{
		PatientID: "PT001",
		Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
}

func TestCreateBill_ConcurrentBillsNeverOversell(t *testing.T) {
	aspirin := medicine("Aspirin", 12, "5")
	opts := defaultOptions()
	opts.RemoveSoldOut = false
	f := newFixture(t, opts, aspirin)

	const buyers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBill(context.Background(), Request{
				PatientID: "PT001",
				Items:     []Item{{MedicineID: aspirin.ID.Hex(), Quantity: 3}},
			})
			if err != nil {
				assert.ErrorIs(t, err, models.ErrInsufficientStock)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 0, f.stock.quantity(t, aspirin.ID.Hex()))
	assert.Len(t, f.ledger.bills("PT001"), 4)
}
