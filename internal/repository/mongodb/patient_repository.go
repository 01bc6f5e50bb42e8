package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

const (
	patientIDIndex = "patientId_unique"
	contactIndex   = "contact_unique"
)

// PatientRepository stores patients with their embedded bills.
type PatientRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewPatientRepository binds the repository to the patients collection.
func NewPatientRepository(db *mongo.Database) *PatientRepository {
	return &PatientRepository{
		coll: db.Collection(patientsCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the uniqueness guarantees the ledger relies on.
func (r *PatientRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "patientId", Value: 1}}, Options: options.Index().SetName(patientIDIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "contact", Value: 1}}, Options: options.Index().SetName(contactIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "bills.createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create patient indexes: %w", err)
	}
	return nil
}

// Create inserts a new patient, rejecting duplicate patient ids and contacts.
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	var existing models.Patient
	err := r.coll.FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"patientId": patient.PatientID},
		bson.M{"contact": patient.Contact},
	}}).Decode(&existing)
	switch {
	case err == nil:
		if existing.PatientID == patient.PatientID {
			return fmt.Errorf("%w: patient id %s already exists", models.ErrConflict, patient.PatientID)
		}
		return fmt.Errorf("%w: contact %s already registered", models.ErrConflict, patient.Contact)
	case !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("check existing patient: %w", err)
	}

	now := r.now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now
	if patient.Bills == nil {
		patient.Bills = []models.Bill{}
	}

	res, err := r.coll.InsertOne(ctx, patient)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicatePatientError(err, patient)
		}
		return fmt.Errorf("insert patient: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		patient.ID = oid
	}
	return nil
}

// FindByIDOrContact looks a patient up by exact patient id or contact number.
func (r *PatientRepository) FindByIDOrContact(ctx context.Context, query string) (*models.Patient, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"patientId": query},
		bson.M{"contact": query},
	}}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	return r.findOne(ctx, filter, opts, query)
}

// FindByPatientID looks a patient up by patient id only.
func (r *PatientRepository) FindByPatientID(ctx context.Context, patientID string) (*models.Patient, error) {
	return r.findOne(ctx, bson.M{"patientId": patientID}, nil, patientID)
}

// AppendBill pushes a bill onto the patient and returns the updated patient.
func (r *PatientRepository) AppendBill(ctx context.Context, patientID string, bill models.Bill) (*models.Patient, error) {
	update := bson.M{
		"$push": bson.M{"bills": bill},
		"$set":  bson.M{"updatedAt": r.now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var patient models.Patient
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"patientId": patientID}, update, opts).Decode(&patient)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("append bill to patient %s: %w", patientID, err)
	}
	return &patient, nil
}

// DeleteBill removes a bill by id. A bill id that matches nothing is not an error;
// a missing patient is.
func (r *PatientRepository) DeleteBill(ctx context.Context, patientID, billID string) error {
	// An id that is not an ObjectID cannot match any bill; pulling it leaves the bills untouched.
	var key interface{} = billID
	if oid, err := primitive.ObjectIDFromHex(billID); err == nil {
		key = oid
	}

	update := bson.M{
		"$pull": bson.M{"bills": bson.M{"_id": key}},
		"$set":  bson.M{"updatedAt": r.now().UTC()},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"patientId": patientID}, update)
	if err != nil {
		return fmt.Errorf("delete bill %s of patient %s: %w", billID, patientID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: patient %s", models.ErrNotFound, patientID)
	}
	return nil
}

// List returns patients, newest first.
func (r *PatientRepository) List(ctx context.Context, limit int64) ([]models.Patient, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{}, opts)
}

// Search matches patient id, name or contact case-insensitively.
func (r *PatientRepository) Search(ctx context.Context, query string, limit int64) ([]models.Patient, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(query)), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"patientId": pattern},
		bson.M{"name": pattern},
		bson.M{"contact": pattern},
	}}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, filter, opts)
}

func (r *PatientRepository) findOne(ctx context.Context, filter interface{}, opts *options.FindOneOptions, label string) (*models.Patient, error) {
	var patient models.Patient

	var err error
	if opts != nil {
		err = r.coll.FindOne(ctx, filter, opts).Decode(&patient)
	} else {
		err = r.coll.FindOne(ctx, filter).Decode(&patient)
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: patient %s", models.ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("find patient %s: %w", label, err)
	}
	return &patient, nil
}

func (r *PatientRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Patient, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}

	patients := []models.Patient{}
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	return patients, nil
}

func duplicatePatientError(err error, patient *models.Patient) error {
	if strings.Contains(err.Error(), contactIndex) {
		return fmt.Errorf("%w: contact %s already registered", models.ErrConflict, patient.Contact)
	}
	return fmt.Errorf("%w: patient id %s already exists", models.ErrConflict, patient.PatientID)
}
