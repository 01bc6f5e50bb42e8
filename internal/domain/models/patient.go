package models

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BillStatus tracks the settlement state of a bill.
type BillStatus string

const (
	BillPaid      BillStatus = "Paid"
	BillPending   BillStatus = "Pending"
	BillCancelled BillStatus = "Cancelled"
)

// LineItem is one purchased medicine, with name and price copied at billing time.
type LineItem struct {
	MedicineName string `bson:"medicineName" json:"medicineName"`
	Quantity     int    `bson:"quantity" json:"quantity"`
	Price        Money  `bson:"price" json:"price"`
	Total        Money  `bson:"total" json:"total"`
}

// NewLineItem computes the line total from quantity and unit price.
func NewLineItem(name string, qty int, price Money) LineItem {
	return LineItem{
		MedicineName: name,
		Quantity:     qty,
		Price:        price,
		Total:        price.Times(qty),
	}
}

// Bill records one billing transaction for a patient.
type Bill struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Items       []LineItem         `bson:"medicines" json:"medicines"`
	TotalAmount Money              `bson:"totalAmount" json:"totalAmount"`
	Status      BillStatus         `bson:"status" json:"status"`
	Doctor      string             `bson:"doctor,omitempty" json:"doctor,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// Patient owns its bills; bills are embedded in the patient document.
type Patient struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	PatientID string             `bson:"patientId" json:"patientId"`
	Name      string             `bson:"name" json:"name"`
	Age       int                `bson:"age" json:"age"`
	Contact   string             `bson:"contact" json:"contact"`
	Email     string             `bson:"email,omitempty" json:"email,omitempty"`
	Address   string             `bson:"address,omitempty" json:"address,omitempty"`
	Bills     []Bill             `bson:"bills" json:"bills"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// TotalBilled sums the amounts of every bill.
func (p Patient) TotalBilled() Money {
	total := Money{}
	for _, b := range p.Bills {
		total = total.Plus(b.TotalAmount)
	}
	return total
}

// BillsNewestFirst returns a copy of the bills sorted by creation time, newest first.
func (p Patient) BillsNewestFirst() []Bill {
	bills := make([]Bill, len(p.Bills))
	copy(bills, p.Bills)
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].CreatedAt.After(bills[j].CreatedAt)
	})
	return bills
}

// PatientHistory is the read model behind the history view.
type PatientHistory struct {
	PatientID   string `json:"patientId"`
	Name        string `json:"name"`
	Age         int    `json:"age"`
	Contact     string `json:"contact"`
	Bills       []Bill `json:"bills"`
	TotalBilled Money  `json:"totalBills"`
}
