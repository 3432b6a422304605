package models

import "github.com/shopspring/decimal"

// Aging buckets.
const (
	AgingCurrent = "current"
	Aging1To30   = "1-30"
	Aging31To60  = "31-60"
	Aging61To90  = "61-90"
	AgingOver90  = "90+"
)

// DebtorFilter narrows the debtor report. Zero values mean "any".
type DebtorFilter struct {
	Term       *int
	Year       *int
	ClassLevel string
	Limit      int
	Offset     int
}

// Debtor is one outstanding invoice with its aging classification.
type Debtor struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	StudentID     int64           `json:"student_id"`
	StudentName   string          `json:"student_name"`
	ClassLevel    string          `json:"class_level"`
	Term          int             `json:"term"`
	Year          int             `json:"year"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Balance       decimal.Decimal `json:"balance"`
	DaysOverdue   int             `json:"days_overdue"`
	AgingCategory string          `json:"aging_category"`
}

// DebtorSummary aggregates balances over the whole filtered set.
type DebtorSummary struct {
	TotalDebtors     int             `json:"total_debtors"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	Current          decimal.Decimal `json:"current"`
	Days1To30        decimal.Decimal `json:"days_1_to_30"`
	Days31To60       decimal.Decimal `json:"days_31_to_60"`
	Days61To90       decimal.Decimal `json:"days_61_to_90"`
	Over90Days       decimal.Decimal `json:"over_90_days"`
}

// DebtorReport is one page of debtors plus the unpaginated summary.
type DebtorReport struct {
	Debtors []Debtor      `json:"debtors"`
	Summary DebtorSummary `json:"summary"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}
