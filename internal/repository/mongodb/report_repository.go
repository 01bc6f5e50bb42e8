package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

// ReportRepository runs the dashboard aggregations over patient bills and stores daily reports.
type ReportRepository struct {
	patients *mongo.Collection
	reports  *mongo.Collection
}

// NewReportRepository binds the repository to the patients and daily_reports collections.
func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{
		patients: db.Collection(patientsCollection),
		reports:  db.Collection(reportsCollection),
	}
}

// SaveDailyReport stores the report for its date, replacing an earlier run of the same day.
func (r *ReportRepository) SaveDailyReport(ctx context.Context, report models.DailyReport) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.reports.ReplaceOne(ctx, bson.M{"date": report.Date}, report, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert daily report: %w", err)
	}
	return nil
}

// CountPatients returns the number of registered patients.
func (r *ReportRepository) CountPatients(ctx context.Context) (int64, error) {
	n, err := r.patients.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

// IncomeBetween sums bill totals created in [from, to).
func (r *ReportRepository) IncomeBetween(ctx context.Context, from, to time.Time) (models.IncomeSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$bills"}},
		{{Key: "$match", Value: bson.M{"bills.createdAt": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$bills.totalAmount"},
			"bills": bson.M{"$sum": 1},
		}}},
	}

	var rows []models.IncomeSummary
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return models.IncomeSummary{}, fmt.Errorf("aggregate income: %w", err)
	}
	if len(rows) == 0 {
		return models.IncomeSummary{}, nil
	}
	return rows[0], nil
}

// MonthlyIncomeSince groups bill totals by calendar month in loc from since onwards, oldest first.
func (r *ReportRepository) MonthlyIncomeSince(ctx context.Context, since time.Time, loc *time.Location) ([]models.MonthlyIncome, error) {
	tz := mongoTimezone(loc, since)
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$bills"}},
		{{Key: "$match", Value: bson.M{"bills.createdAt": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"year":  bson.M{"$year": bson.M{"date": "$bills.createdAt", "timezone": tz}},
				"month": bson.M{"$month": bson.M{"date": "$bills.createdAt", "timezone": tz}},
			},
			"income": bson.M{"$sum": "$bills.totalAmount"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":    0,
			"year":   "$_id.year",
			"month":  "$_id.month",
			"income": 1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}}}},
	}

	rows := []models.MonthlyIncome{}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("aggregate monthly income: %w", err)
	}
	for i := range rows {
		if rows[i].Number >= 1 && rows[i].Number <= 12 {
			rows[i].Month = time.Month(rows[i].Number).String()[:3]
		}
	}
	return rows, nil
}

// RecentTransactions returns the latest bills across all patients.
func (r *ReportRepository) RecentTransactions(ctx context.Context, limit int64) ([]models.RecentTransaction, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$bills"}},
		{{Key: "$sort", Value: bson.D{{Key: "bills.createdAt", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"patientId":   "$patientId",
			"patientName": "$name",
			"billId":      bson.M{"$toString": "$bills._id"},
			"date":        "$bills.createdAt",
			"amount":      "$bills.totalAmount",
			"status":      "$bills.status",
		}}},
	}

	rows := []models.RecentTransaction{}
	if err := r.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("aggregate recent transactions: %w", err)
	}
	return rows, nil
}

// mongoTimezone names loc for the date operators: its IANA id when it has one, otherwise the
// UTC offset it carries at the given instant.
func mongoTimezone(loc *time.Location, at time.Time) string {
	if loc == nil {
		return "UTC"
	}
	if name := loc.String(); name != "Local" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}

	_, offset := at.In(loc).Zone()
	sign := '+'
	if offset < 0 {
		sign, offset = '-', -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

func (r *ReportRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := r.patients.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}
