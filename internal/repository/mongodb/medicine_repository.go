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

// MedicineRepository is the stock repository backed by the medicines collection.
type MedicineRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMedicineRepository binds the repository to the medicines collection.
func NewMedicineRepository(db *mongo.Database) *MedicineRepository {
	return &MedicineRepository{
		coll: db.Collection(medicinesCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the indexes behind the low-stock and expiry listings.
func (r *MedicineRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "quantity", Value: 1}}},
		{Keys: bson.D{{Key: "expiryDate", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create medicine indexes: %w", err)
	}
	return nil
}

// Create inserts a medicine and assigns its id.
func (r *MedicineRepository) Create(ctx context.Context, medicine *models.Medicine) error {
	now := r.now().UTC()
	medicine.CreatedAt = now
	medicine.UpdatedAt = now
	medicine.Version = 1

	res, err := r.coll.InsertOne(ctx, medicine)
	if err != nil {
		return fmt.Errorf("insert medicine %s: %w", medicine.Name, err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		medicine.ID = oid
	}
	return nil
}

// FindByID returns the medicine with the given hex id. Malformed ids are reported as not found.
func (r *MedicineRepository) FindByID(ctx context.Context, id string) (*models.Medicine, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}

	var medicine models.Medicine
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&medicine)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find medicine %s: %w", id, err)
	}
	return &medicine, nil
}

// Update replaces the editable fields of a medicine. When expectedVersion is positive the write
// only applies to that version and a mismatch is reported as a conflict.
func (r *MedicineRepository) Update(ctx context.Context, medicine models.Medicine, expectedVersion int64) (*models.Medicine, error) {
	filter := bson.M{"_id": medicine.ID}
	if expectedVersion > 0 {
		filter["version"] = expectedVersion
	}

	update := bson.M{
		"$set": bson.M{
			"medicineName": medicine.Name,
			"manufacturer": medicine.Manufacturer,
			"category":     medicine.Category,
			"quantity":     medicine.Quantity,
			"price":        medicine.Price,
			"expiryDate":   medicine.ExpiryDate,
			"updatedAt":    r.now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Medicine
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if expectedVersion > 0 {
			if _, findErr := r.FindByID(ctx, medicine.ID.Hex()); findErr == nil {
				return nil, fmt.Errorf("%w: medicine %s was modified concurrently", models.ErrConflict, medicine.ID.Hex())
			}
		}
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, medicine.ID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("update medicine %s: %w", medicine.ID.Hex(), err)
	}
	return &updated, nil
}

// Delete removes a medicine.
func (r *MedicineRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete medicine %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	return nil
}

// List returns medicines newest first, optionally filtered by a case-insensitive search over
// name, manufacturer and category.
func (r *MedicineRepository) List(ctx context.Context, search string) ([]models.Medicine, error) {
	filter := bson.M{}
	if search = strings.TrimSpace(search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter = bson.M{"$or": bson.A{
			bson.M{"medicineName": pattern},
			bson.M{"manufacturer": pattern},
			bson.M{"category": pattern},
		}}
	}

	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// ListByCategory returns medicines whose category matches case-insensitively.
func (r *MedicineRepository) ListByCategory(ctx context.Context, category string) ([]models.Medicine, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(category)), Options: "i"}
	return r.find(ctx, bson.M{"category": pattern}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// Decrement atomically takes amount units out of stock. The update only matches while enough
// stock remains, so concurrent bills can never drive the quantity below zero.
func (r *MedicineRepository) Decrement(ctx context.Context, id string, amount int) (*models.Medicine, error) {
	if amount <= 0 {
		return nil, models.NewValidationError(fmt.Sprintf("decrement amount must be positive, got %d", amount))
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}

	filter := bson.M{"_id": oid, "quantity": bson.M{"$gte": amount}}
	update := bson.M{
		"$inc": bson.M{"quantity": -amount, "version": 1},
		"$set": bson.M{"updatedAt": r.now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Medicine
	err = r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("decrement medicine %s: %w", id, err)
	}

	current, findErr := r.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return nil, &models.InsufficientStockError{
		MedicineID:   id,
		MedicineName: current.Name,
		Available:    current.Quantity,
		Requested:    amount,
	}
}

// Increment puts amount units back into stock.
func (r *MedicineRepository) Increment(ctx context.Context, id string, amount int) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}

	update := bson.M{
		"$inc": bson.M{"quantity": amount, "version": 1},
		"$set": bson.M{"updatedAt": r.now().UTC()},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("increment medicine %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}
	return nil
}

// DeleteIfZero removes the medicine only while its quantity is exactly zero. It reports whether
// a record was removed; a concurrent restock turns it into a no-op.
func (r *MedicineRepository) DeleteIfZero(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: medicine %s", models.ErrNotFound, id)
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid, "quantity": 0})
	if err != nil {
		return false, fmt.Errorf("delete sold out medicine %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

// ListLowStock returns medicines at or below the threshold, lowest quantity first.
func (r *MedicineRepository) ListLowStock(ctx context.Context, threshold int) ([]models.Medicine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "quantity", Value: 1}})
	return r.find(ctx, lowStockFilter(threshold), opts)
}

// ListExpiringBetween returns medicines expiring inside [from, to], soonest first.
func (r *MedicineRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Medicine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiryDate", Value: 1}})
	return r.find(ctx, expiringFilter(from, to), opts)
}

// CountLowStock counts medicines at or below the threshold.
func (r *MedicineRepository) CountLowStock(ctx context.Context, threshold int) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, lowStockFilter(threshold))
	if err != nil {
		return 0, fmt.Errorf("count low stock medicines: %w", err)
	}
	return n, nil
}

// CountExpiringBetween counts medicines expiring inside [from, to].
func (r *MedicineRepository) CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, expiringFilter(from, to))
	if err != nil {
		return 0, fmt.Errorf("count expiring medicines: %w", err)
	}
	return n, nil
}

func (r *MedicineRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]models.Medicine, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find medicines: %w", err)
	}

	medicines := []models.Medicine{}
	if err := cursor.All(ctx, &medicines); err != nil {
		return nil, fmt.Errorf("decode medicines: %w", err)
	}
	return medicines, nil
}

func lowStockFilter(threshold int) bson.M {
	return bson.M{"quantity": bson.M{"$lte": threshold}}
}

func expiringFilter(from, to time.Time) bson.M {
	return bson.M{"expiryDate": bson.M{"$gte": from, "$lte": to}}
}
