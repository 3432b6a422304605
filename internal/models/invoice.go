package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks how much of an invoice has been settled.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "unpaid"
	InvoicePartial InvoiceStatus = "partial"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice bills one student for one term of a year.
type Invoice struct {
	ID             int64           `db:"id" json:"id"`
	SchoolID       int64           `db:"school_id" json:"school_id"`
	StudentID      int64           `db:"student_id" json:"student_id"`
	Term           int             `db:"term" json:"term"`
	Year           int             `db:"year" json:"year"`
	InvoiceNumber  string          `db:"invoice_number" json:"invoice_number"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountPaid     decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Status         InvoiceStatus   `db:"status" json:"status"`
	DueDate        *time.Time      `db:"due_date" json:"due_date,omitempty"`
	Notes          string          `db:"notes" json:"notes"`
	ReminderCount  int             `db:"reminder_count" json:"reminder_count"`
	LastReminderAt *time.Time      `db:"last_reminder_at" json:"last_reminder_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Items          []InvoiceItem   `db:"-" json:"items,omitempty"`
}

// InvoiceItem is one fee type line of an invoice.
type InvoiceItem struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceID   int64           `db:"invoice_id" json:"invoice_id"`
	FeeType     string          `db:"fee_type" json:"fee_type"`
	Description string          `db:"description" json:"description"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
}

// InvoiceTotals aggregates billed and outstanding amounts.
type InvoiceTotals struct {
	Billed      decimal.Decimal `db:"billed"`
	Outstanding decimal.Decimal `db:"outstanding"`
}

// OutstandingInvoice is an invoice with a positive balance joined with its student.
type OutstandingInvoice struct {
	InvoiceID     int64           `db:"invoice_id"`
	InvoiceNumber string          `db:"invoice_number"`
	StudentID     int64           `db:"student_id"`
	StudentName   string          `db:"student_name"`
	ClassLevel    string          `db:"class_level"`
	Term          int             `db:"term"`
	Year          int             `db:"year"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	AmountPaid    decimal.Decimal `db:"amount_paid"`
	Balance       decimal.Decimal `db:"balance"`
	DueDate       *time.Time      `db:"due_date"`
	CreatedAt     time.Time       `db:"created_at"`
}
