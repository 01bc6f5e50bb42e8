package models

import "time"

// DailyReport is the end-of-day snapshot stored in MongoDB and mirrored to the reporting sheet.
type DailyReport struct {
	Date          time.Time `bson:"date" json:"date"`
	TotalPatients int64     `bson:"total_patients" json:"total_patients"`
	BillsIssued   int64     `bson:"bills_issued" json:"bills_issued"`
	Income        Money     `bson:"income" json:"income"`
	LowStockCount int64     `bson:"low_stock_count" json:"low_stock_count"`
	ExpiringCount int64     `bson:"expiring_count" json:"expiring_count"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// MonthlyIncome is one point of the income series shown on the dashboard.
type MonthlyIncome struct {
	Year   int    `bson:"year" json:"year"`
	Month  string `bson:"-" json:"month"`
	Number int    `bson:"month" json:"-"`
	Income Money  `bson:"income" json:"income"`
}

// RecentTransaction is a bill flattened with its patient's name.
type RecentTransaction struct {
	PatientID   string     `bson:"patientId" json:"patientId"`
	PatientName string     `bson:"patientName" json:"patientName"`
	BillID      string     `bson:"billId" json:"billId"`
	Date        time.Time  `bson:"date" json:"date"`
	Amount      Money      `bson:"amount" json:"amount"`
	Status      BillStatus `bson:"status" json:"status"`
}

// IncomeSummary aggregates bill totals over a period.
type IncomeSummary struct {
	Total Money `bson:"total" json:"income"`
	Bills int64 `bson:"bills" json:"bills"`
}

// DashboardStats is the dashboard read model.
type DashboardStats struct {
	TotalPatients      int64               `json:"totalPatients"`
	TodayIncome        Money               `json:"todayIncome"`
	MonthlyIncome      Money               `json:"monthlyIncome"`
	LowStock           int64               `json:"lowStock"`
	ExpiringStock      int64               `json:"expiringStock"`
	MonthlyIncomeData  []MonthlyIncome     `json:"monthlyIncomeData"`
	RecentTransactions []RecentTransaction `json:"recentTransactions"`
}
