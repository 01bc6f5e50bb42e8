package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

type mockInventory struct {
	ListFunc     func(ctx context.Context, search, category string) ([]models.Medicine, error)
	LowStockFunc func(ctx context.Context) ([]models.Medicine, error)
	ExpiringFunc func(ctx context.Context, days int) ([]models.Medicine, error)
}

var _ InventoryReader = (*mockInventory)(nil)

func (m *mockInventory) List(ctx context.Context, search, category string) ([]models.Medicine, error) {
	return m.ListFunc(ctx, search, category)
}

func (m *mockInventory) LowStock(ctx context.Context) ([]models.Medicine, error) {
	return m.LowStockFunc(ctx)
}

func (m *mockInventory) Expiring(ctx context.Context, days int) ([]models.Medicine, error) {
	return m.ExpiringFunc(ctx, days)
}

func (m *mockInventory) Policy() models.StockPolicy {
	return models.DefaultStockPolicy()
}

type mockPatients struct {
	LookupFunc func(ctx context.Context, query string) (*models.Patient, error)
}

var _ PatientReader = (*mockPatients)(nil)

func (m *mockPatients) Lookup(ctx context.Context, query string) (*models.Patient, error) {
	return m.LookupFunc(ctx, query)
}

func TestHandleCommand_LowStock(t *testing.T) {
	inv := &mockInventory{LowStockFunc: func(context.Context) ([]models.Medicine, error) {
		return []models.Medicine{{Name: "Cetirizine", Quantity: 0}, {Name: "Aspirin", Quantity: 7}}, nil
	}}
	svc := NewService(inv, &mockPatients{}, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/lowstock"), "919000000001")
	require.NoError(t, err)
	assert.Equal(t, "Low stock (2):\n- Cetirizine: sold out\n- Aspirin: 7 left", reply)
}

func TestHandleCommand_LowStockEmpty(t *testing.T) {
	inv := &mockInventory{LowStockFunc: func(context.Context) ([]models.Medicine, error) { return nil, nil }}
	svc := NewService(inv, &mockPatients{}, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("low"), "")
	require.NoError(t, err)
	assert.Equal(t, "No medicine is at or below 10 units.", reply)
}

func TestHandleCommand_Expiring(t *testing.T) {
	var gotDays int
	inv := &mockInventory{ExpiringFunc: func(_ context.Context, days int) ([]models.Medicine, error) {
		gotDays = days
		return []models.Medicine{{Name: "Insulin", Quantity: 40, ExpiryDate: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)}}, nil
	}}
	svc := NewService(inv, &mockPatients{}, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/expiring"), "")
	require.NoError(t, err)
	assert.Equal(t, 30, gotDays)
	assert.Equal(t, "Expiring within 30 days (1):\n- Insulin: 2025-03-20 (40 in stock)", reply)

	_, err = svc.HandleCommand(context.Background(), models.ParseCommand("/expiring 7"), "")
	require.NoError(t, err)
	assert.Equal(t, 7, gotDays)

	_, err = svc.HandleCommand(context.Background(), models.ParseCommand("/expiring soon"), "")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestHandleCommand_Stock(t *testing.T) {
	inv := &mockInventory{ListFunc: func(_ context.Context, search, category string) ([]models.Medicine, error) {
		assert.Equal(t, "cough syrup", search)
		assert.Empty(t, category)
		return []models.Medicine{{
			Name:         "Cough Syrup",
			Manufacturer: "Cipla",
			Quantity:     18,
			Price:        models.MoneyFromInt(45),
			ExpiryDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		}}, nil
	}}
	svc := NewService(inv, &mockPatients{}, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/stock cough syrup"), "")
	require.NoError(t, err)
	assert.Equal(t, "Stock for \"cough syrup\":\n- Cough Syrup (Cipla): 18 @ 45.00, expires 2026-01-31", reply)

	_, err = svc.HandleCommand(context.Background(), models.ParseCommand("/stock"), "")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestHandleCommand_Patient(t *testing.T) {
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	patients := &mockPatients{LookupFunc: func(_ context.Context, query string) (*models.Patient, error) {
		if query != "PT001" {
			return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, query)
		}
		return &models.Patient{
			PatientID: "PT001", Name: "Asha", Age: 34, Contact: "9000000001",
			Bills: []models.Bill{
				{ID: primitive.NewObjectID(), TotalAmount: models.MoneyFromInt(25), Status: models.BillPaid, CreatedAt: day},
				{ID: primitive.NewObjectID(), TotalAmount: models.MoneyFromInt(40), Status: models.BillPaid, CreatedAt: day.AddDate(0, 0, 3)},
			},
		}, nil
	}}
	svc := NewService(&mockInventory{}, patients, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/patient PT001"), "")
	require.NoError(t, err)
	assert.Equal(t, "Asha (PT001), age 34, contact 9000000001\nBills: 2, total billed 65.00\nLast bill: 2025-03-04, 40.00 (Paid)", reply)

	reply, err = svc.HandleCommand(context.Background(), models.ParseCommand("/patient PT404"), "")
	require.NoError(t, err)
	assert.Equal(t, "No patient found for PT404.", reply)
}

func TestHandleCommand_PropagatesStoreErrors(t *testing.T) {
	inv := &mockInventory{LowStockFunc: func(context.Context) ([]models.Medicine, error) {
		return nil, errors.New("server selection timeout")
	}}
	svc := NewService(inv, &mockPatients{}, nil)

	_, err := svc.HandleCommand(context.Background(), models.ParseCommand("/lowstock"), "")
	assert.ErrorContains(t, err, "server selection timeout")
}

func TestHandleCommand_HelpAndUnknown(t *testing.T) {
	svc := NewService(&mockInventory{}, &mockPatients{}, nil)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/help"), "")
	require.NoError(t, err)
	assert.Equal(t, HelpText, reply)

	_, err = svc.HandleCommand(context.Background(), models.ParseCommand("/eggs 12"), "")
	assert.ErrorIs(t, err, ErrUnsupportedCommand)
}
