package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanFrequency sets the spacing between installment due dates.
type PlanFrequency string

const (
	FrequencyWeekly  PlanFrequency = "weekly"
	FrequencyMonthly PlanFrequency = "monthly"
)

// Plan statuses.
const (
	PlanActive    = "active"
	PlanCompleted = "completed"
)

// InstallmentStatus tracks settlement of a single installment.
type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
)

// PaymentPlan spreads a balance over scheduled installments after a down payment.
type PaymentPlan struct {
	ID               int64             `db:"id" json:"id"`
	SchoolID         int64             `db:"school_id" json:"school_id"`
	StudentID        int64             `db:"student_id" json:"student_id"`
	InvoiceID        *int64            `db:"invoice_id" json:"invoice_id,omitempty"`
	Term             int               `db:"term" json:"term"`
	Year             int               `db:"year" json:"year"`
	TotalAmount      decimal.Decimal   `db:"total_amount" json:"total_amount"`
	DownPayment      decimal.Decimal   `db:"down_payment" json:"down_payment"`
	InstallmentCount int               `db:"installment_count" json:"installment_count"`
	Frequency        PlanFrequency     `db:"frequency" json:"frequency"`
	StartDate        time.Time         `db:"start_date" json:"start_date"`
	Status           string            `db:"status" json:"status"`
	Notes            string            `db:"notes" json:"notes"`
	CreatedBy        string            `db:"created_by" json:"created_by"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	Installments     []PlanInstallment `db:"-" json:"installments,omitempty"`
}

// PlanInstallment is one scheduled slice of a payment plan.
type PlanInstallment struct {
	ID                int64             `db:"id" json:"id"`
	PlanID            int64             `db:"plan_id" json:"plan_id"`
	InstallmentNumber int               `db:"installment_number" json:"installment_number"`
	DueDate           time.Time         `db:"due_date" json:"due_date"`
	Amount            decimal.Decimal   `db:"amount" json:"amount"`
	PaidAmount        decimal.Decimal   `db:"paid_amount" json:"paid_amount"`
	Status            InstallmentStatus `db:"status" json:"status"`
}

// Remaining is the unpaid part of the installment.
func (i PlanInstallment) Remaining() decimal.Decimal {
	return i.Amount.Sub(i.PaidAmount)
}
