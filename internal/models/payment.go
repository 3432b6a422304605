package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind distinguishes how a fee payment entered the system.
type PaymentKind string

const (
	PaymentDirect      PaymentKind = "direct"
	PaymentInstallment PaymentKind = "installment"
	PaymentDownPayment PaymentKind = "down_payment"
)

// Accepted payment methods; anything else is recorded as cash.
const (
	MethodCash        = "Cash"
	MethodBankDeposit = "Bank Deposit"
	MethodCheque      = "Cheque"
)

// PaymentStatus is the snapshot status stored on a fee payment.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
)

// FeePayment is an immutable record of one payment event.
type FeePayment struct {
	ID             int64           `db:"id" json:"id"`
	SchoolID       int64           `db:"school_id" json:"school_id"`
	StudentID      int64           `db:"student_id" json:"student_id"`
	InvoiceID      *int64          `db:"invoice_id" json:"invoice_id,omitempty"`
	PaymentPlanID  *int64          `db:"payment_plan_id" json:"payment_plan_id,omitempty"`
	InstallmentID  *int64          `db:"installment_id" json:"installment_id,omitempty"`
	Kind           PaymentKind     `db:"kind" json:"kind"`
	FeeType        string          `db:"fee_type" json:"fee_type"`
	AmountDue      decimal.Decimal `db:"amount_due" json:"amount_due"`
	AmountPaid     decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	Status         PaymentStatus   `db:"status" json:"status"`
	Term           int             `db:"term" json:"term"`
	Year           int             `db:"year" json:"year"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	ReceiptNumber  string          `db:"receipt_number" json:"receipt_number"`
	Notes          string          `db:"notes" json:"notes"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Deleted        bool            `db:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedBy      string          `db:"created_by" json:"created_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// NormalizePaymentMethod maps unknown or empty methods to cash.
func NormalizePaymentMethod(method string) string {
	switch method {
	case MethodCash, MethodBankDeposit, MethodCheque:
		return method
	default:
		return MethodCash
	}
}
