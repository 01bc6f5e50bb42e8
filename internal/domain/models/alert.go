package models

import "time"

// AlertType enumerates the inventory conditions worth telling someone about.
type AlertType string

const (
	AlertOutOfStock AlertType = "out_of_stock"
	AlertLowStock   AlertType = "low_stock"
	AlertExpiring   AlertType = "expiring"
)

// Alert is a single inventory notice about one medicine.
type Alert struct {
	Type         AlertType `json:"type"`
	MedicineID   string    `json:"medicineId"`
	MedicineName string    `json:"medicineName"`
	Quantity     int       `json:"quantity"`
	ExpiryDate   time.Time `json:"expiryDate"`
}

// NewAlert snapshots the medicine fields an alert needs.
func NewAlert(t AlertType, m Medicine) Alert {
	return Alert{
		Type:         t,
		MedicineID:   m.ID.Hex(),
		MedicineName: m.Name,
		Quantity:     m.Quantity,
		ExpiryDate:   m.ExpiryDate,
	}
}
