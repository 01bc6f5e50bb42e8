package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultLowStockThreshold is the quantity at or below which a medicine is reported as running low.
	DefaultLowStockThreshold = 10
	// DefaultExpiryWindowDays is the look-ahead used to flag medicines nearing expiry.
	DefaultExpiryWindowDays = 30
)

// Medicine is one inventory entry for a specific medicine listing.
type Medicine struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"medicineName" json:"name"`
	Manufacturer string             `bson:"manufacturer" json:"manufacturer"`
	Category     string             `bson:"category,omitempty" json:"category,omitempty"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	Price        Money              `bson:"price" json:"price"`
	ExpiryDate   time.Time          `bson:"expiryDate" json:"expiryDate"`
	Version      int64              `bson:"version" json:"version"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// StockPolicy holds the thresholds shared by billing alerts and the standalone stock listings.
type StockPolicy struct {
	LowStockThreshold int
	ExpiryWindowDays  int
}

// DefaultStockPolicy returns the 10 units / 30 days policy.
func DefaultStockPolicy() StockPolicy {
	return StockPolicy{
		LowStockThreshold: DefaultLowStockThreshold,
		ExpiryWindowDays:  DefaultExpiryWindowDays,
	}
}

// IsOutOfStock reports whether nothing is left.
func (p StockPolicy) IsOutOfStock(m Medicine) bool {
	return m.Quantity <= 0
}

// IsLowStock reports whether some stock remains but no more than the threshold.
func (p StockPolicy) IsLowStock(m Medicine) bool {
	return m.Quantity > 0 && m.Quantity <= p.LowStockThreshold
}

// ExpiryWindow returns the [start of today, start of today + window] range used for expiry checks.
func (p StockPolicy) ExpiryWindow(now time.Time) (time.Time, time.Time) {
	return p.ExpiryWindowFor(now, p.ExpiryWindowDays)
}

// ExpiryWindowFor is ExpiryWindow with an explicit number of days.
func (p StockPolicy) ExpiryWindowFor(now time.Time, days int) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, days+1).Add(-time.Nanosecond)
	return start, end
}

// IsExpiring reports whether the expiry date falls inside the expiry window.
func (p StockPolicy) IsExpiring(m Medicine, now time.Time) bool {
	if m.ExpiryDate.IsZero() {
		return false
	}
	start, end := p.ExpiryWindow(now)
	return !m.ExpiryDate.Before(start) && !m.ExpiryDate.After(end)
}

// Classify returns every alert the current state of a medicine warrants.
func (p StockPolicy) Classify(m Medicine, now time.Time) []Alert {
	var alerts []Alert

	switch {
	case p.IsOutOfStock(m):
		alerts = append(alerts, NewAlert(AlertOutOfStock, m))
	case p.IsLowStock(m):
		alerts = append(alerts, NewAlert(AlertLowStock, m))
	}

	if p.IsExpiring(m, now) {
		alerts = append(alerts, NewAlert(AlertExpiring, m))
	}

	return alerts
}
