package patients

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

type memoryStore struct {
	patients []*models.Patient
}

var _ Store = (*memoryStore)(nil)

func (s *memoryStore) Create(_ context.Context, p *models.Patient) error {
	for _, existing := range s.patients {
		if existing.PatientID == p.PatientID {
			return fmt.Errorf("%w: patient id %s already exists", models.ErrConflict, p.PatientID)
		}
		if existing.Contact == p.Contact {
			return fmt.Errorf("%w: contact %s already registered", models.ErrConflict, p.Contact)
		}
	}
	p.ID = primitive.NewObjectID()
	c := *p
	s.patients = append(s.patients, &c)
	return nil
}

func (s *memoryStore) FindByIDOrContact(_ context.Context, query string) (*models.Patient, error) {
	for _, p := range s.patients {
		if p.PatientID == query || p.Contact == query {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, query)
}

func (s *memoryStore) FindByPatientID(_ context.Context, patientID string) (*models.Patient, error) {
	for _, p := range s.patients {
		if p.PatientID == patientID {
			c := *p
			c.Bills = append([]models.Bill(nil), p.Bills...)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
}

func (s *memoryStore) List(_ context.Context, limit int64) ([]models.Patient, error) {
	out := []models.Patient{}
	for i := len(s.patients) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, *s.patients[i])
	}
	return out, nil
}

func (s *memoryStore) Search(_ context.Context, query string, limit int64) ([]models.Patient, error) {
	out := []models.Patient{}
	q := strings.ToLower(query)
	for _, p := range s.patients {
		if int64(len(out)) == limit {
			break
		}
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(p.PatientID, query) || strings.Contains(p.Contact, query) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteBill(_ context.Context, patientID, billID string) error {
	for _, p := range s.patients {
		if p.PatientID != patientID {
			continue
		}
		kept := []models.Bill{}
		for _, b := range p.Bills {
			if b.ID.Hex() != billID {
				kept = append(kept, b)
			}
		}
		p.Bills = kept
		return nil
	}
	return fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
}

func (s *memoryStore) appendBill(patientID string, bill models.Bill) {
	for _, p := range s.patients {
		if p.PatientID == patientID {
			p.Bills = append(p.Bills, bill)
		}
	}
}

func registerAsha(t *testing.T, svc *Service) *models.Patient {
	t.Helper()
	p, err := svc.Register(context.Background(), RegisterInput{
		PatientID: "PT001",
		Name:      "Asha",
		Age:       34,
		Contact:   "9000000001",
		Email:     "asha@example.com",
	})
	require.NoError(t, err)
	return p
}

func bill(amount int64, at time.Time) models.Bill {
	return models.Bill{
		ID:          primitive.NewObjectID(),
		TotalAmount: models.MoneyFromInt(amount),
		Status:      models.BillPaid,
		CreatedAt:   at,
	}
}

func TestRegister(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)

	p := registerAsha(t, svc)
	assert.Equal(t, "PT001", p.PatientID)
	assert.NotNil(t, p.Bills)
}

func TestRegister_GeneratesPatientID(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)

	p, err := svc.Register(context.Background(), RegisterInput{Name: "Ravi", Age: 40, Contact: "9000000002"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^PAT\d{6}$`), p.PatientID)
}

func TestRegister_RetriesGeneratedIDClash(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)
	registerAsha(t, svc)

	ids := []string{"PT001", "PAT123456"}
	svc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	p, err := svc.Register(context.Background(), RegisterInput{Name: "Ravi", Age: 40, Contact: "9000000002"})
	require.NoError(t, err)
	assert.Equal(t, "PAT123456", p.PatientID)
}

func TestRegister_DuplicateContactIsConflict(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)
	registerAsha(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Ravi", Age: 40, Contact: "9000000001"})
	require.ErrorIs(t, err, models.ErrConflict)
	assert.Contains(t, err.Error(), "9000000001")
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{name: "missing name", in: RegisterInput{Age: 30, Contact: "9000000001"}, want: "name is required"},
		{name: "zero age", in: RegisterInput{Name: "A", Contact: "9000000001"}, want: "age must be greater than 0"},
		{name: "short contact", in: RegisterInput{Name: "A", Age: 30, Contact: "900000"}, want: "contact must be exactly 10 characters"},
		{name: "non digit contact", in: RegisterInput{Name: "A", Age: 30, Contact: "90000000ab"}, want: "contact must contain digits only"},
		{name: "bad email", in: RegisterInput{Name: "A", Age: 30, Contact: "9000000001", Email: "not-an-email"}, want: "email must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&memoryStore{}, nil)

			_, err := svc.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, models.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLookup(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)
	registerAsha(t, svc)

	byContact, err := svc.Lookup(context.Background(), " 9000000001 ")
	require.NoError(t, err)
	assert.Equal(t, "PT001", byContact.PatientID)

	_, err = svc.Lookup(context.Background(), "PT404")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = svc.Lookup(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)
	registerAsha(t, svc)

	found, err := svc.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = svc.Search(context.Background(), "ash")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestHistory_NewestFirstWithTotal(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)
	registerAsha(t, svc)

	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.appendBill("PT001", bill(25, day))
	store.appendBill("PT001", bill(40, day.AddDate(0, 0, 2)))
	store.appendBill("PT001", bill(10, day.AddDate(0, 0, 1)))

	history, err := svc.History(context.Background(), "PT001")
	require.NoError(t, err)

	require.Len(t, history.Bills, 3)
	assert.Equal(t, "40", history.Bills[0].TotalAmount.String())
	assert.Equal(t, "10", history.Bills[1].TotalAmount.String())
	assert.Equal(t, "25", history.Bills[2].TotalAmount.String())
	assert.Equal(t, "75", history.TotalBilled.String())
}

func TestDeleteBill_RestoresPreviousSequence(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)
	registerAsha(t, svc)

	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.appendBill("PT001", bill(25, day))
	before, err := store.FindByPatientID(context.Background(), "PT001")
	require.NoError(t, err)

	added := bill(40, day.AddDate(0, 0, 1))
	store.appendBill("PT001", added)

	require.NoError(t, svc.DeleteBill(context.Background(), "PT001", added.ID.Hex()))

	after, err := store.FindByPatientID(context.Background(), "PT001")
	require.NoError(t, err)
	assert.Equal(t, before.Bills, after.Bills)
}

func TestDeleteBill_UnknownPatient(t *testing.T) {
	svc := NewService(&memoryStore{}, nil)

	err := svc.DeleteBill(context.Background(), "PT404", primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
