package dto

import "github.com/shopspring/decimal"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// GenerateInvoicesRequest starts a per-term invoice run for the active school.
type GenerateInvoicesRequest struct {
	Term       int    `json:"term" validate:"required,min=1,max=3"`
	Year       int    `json:"year" validate:"required,min=2000,max=2100"`
	ClassLevel string `json:"classLevel" validate:"omitempty,max=64"`
	DueDate    string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
}

// GenerateInvoicesResult reports how many students were invoiced.
type GenerateInvoicesResult struct {
	InvoicesCreated int `json:"invoicesCreated"`
	InvoicesSkipped int `json:"invoicesSkipped"`
}

// UpdateInvoiceRequest soft-edits invoice metadata.
type UpdateInvoiceRequest struct {
	Notes   *string `json:"notes" validate:"omitempty,max=1000"`
	DueDate *string `json:"dueDate" validate:"omitempty,datetime=2006-01-02"`
}

// RecordPaymentRequest records a direct payment against the student's term invoice.
type RecordPaymentRequest struct {
	StudentID      int64           `json:"studentId" validate:"required,gt=0"`
	FeeType        string          `json:"feeType" validate:"required,max=64"`
	AmountPaid     decimal.Decimal `json:"amountPaid"`
	Term           int             `json:"term" validate:"required,min=1,max=3"`
	Year           int             `json:"year" validate:"required,min=2000,max=2100"`
	PaymentMethod  string          `json:"paymentMethod"`
	ReceiptNumber  string          `json:"receiptNumber" validate:"omitempty,max=32"`
	Notes          string          `json:"notes" validate:"omitempty,max=500"`
	IdempotencyKey string          `json:"idempotencyKey" validate:"omitempty,uuid"`
}

// VoidPaymentRequest explains a payment correction.
type VoidPaymentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// CreatePaymentPlanRequest schedules installments for a student.
type CreatePaymentPlanRequest struct {
	StudentID        int64           `json:"studentId" validate:"required,gt=0"`
	InvoiceID        *int64          `json:"invoiceId" validate:"omitempty,gt=0"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	DownPayment      decimal.Decimal `json:"downPayment"`
	InstallmentCount int             `json:"installmentCount" validate:"required,min=1,max=36"`
	Frequency        string          `json:"frequency" validate:"required,oneof=weekly monthly"`
	StartDate        string          `json:"startDate" validate:"required,datetime=2006-01-02"`
	Term             *int            `json:"term" validate:"omitempty,min=1,max=3"`
	Year             *int            `json:"year" validate:"omitempty,min=2000,max=2100"`
	Notes            string          `json:"notes" validate:"omitempty,max=500"`
}

// PayInstallmentRequest pays towards one installment.
type PayInstallmentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes" validate:"omitempty,max=500"`
}

// PayInstallmentResult echoes the outcome of an installment payment.
type PayInstallmentResult struct {
	Success       bool            `json:"success"`
	PaymentID     int64           `json:"paymentId"`
	ReceiptNumber string          `json:"receiptNumber"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	Status        string          `json:"status"`
}

// ReconcileResult counts down-payment backfill outcomes.
type ReconcileResult struct {
	PlansChecked int `json:"plansChecked"`
	Created      int `json:"created"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// UpsertFeeStructureRequest creates or reprices one catalog row.
type UpsertFeeStructureRequest struct {
	ClassLevel     string          `json:"classLevel" validate:"required,max=64"`
	FeeType        string          `json:"feeType" validate:"required,max=64"`
	Term           *int            `json:"term" validate:"omitempty,min=1,max=3"`
	Year           int             `json:"year" validate:"required,min=2000,max=2100"`
	BoardingStatus *string         `json:"boardingStatus" validate:"omitempty,max=32"`
	Amount         decimal.Decimal `json:"amount"`
	IsActive       *bool           `json:"isActive"`
}

// UpsertOverrideRequest sets a student's custom amount for a fee type.
type UpsertOverrideRequest struct {
	StudentID    int64           `json:"studentId" validate:"required,gt=0"`
	FeeType      string          `json:"feeType" validate:"required,max=64"`
	Term         *int            `json:"term" validate:"omitempty,min=1,max=3"`
	Year         int             `json:"year" validate:"required,min=2000,max=2100"`
	CustomAmount decimal.Decimal `json:"customAmount"`
	Reason       string          `json:"reason" validate:"omitempty,max=500"`
	IsActive     *bool           `json:"isActive"`
}

// CreateScholarshipRequest defines a discount rule.
type CreateScholarshipRequest struct {
	Name          string          `json:"name" validate:"required,max=128"`
	DiscountType  string          `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	FeeTypes      []string        `json:"feeTypes" validate:"omitempty,dive,required,max=64"`
	ValidFrom     string          `json:"validFrom" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil    string          `json:"validUntil" validate:"omitempty,datetime=2006-01-02"`
}

// AssignScholarshipRequest links a scholarship to a student for a term or a whole year.
type AssignScholarshipRequest struct {
	StudentID int64  `json:"studentId" validate:"required,gt=0"`
	Term      *int   `json:"term" validate:"omitempty,min=1,max=3"`
	Year      int    `json:"year" validate:"required,min=2000,max=2100"`
	Status    string `json:"status" validate:"omitempty,oneof=active suspended revoked"`
}

// RecordLedgerEntryRequest appends a school-level expense or income row.
type RecordLedgerEntryRequest struct {
	Category        string          `json:"category" validate:"required,oneof=expense income"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"required,max=500"`
	Term            *int            `json:"term" validate:"omitempty,min=1,max=3"`
	Year            *int            `json:"year" validate:"omitempty,min=2000,max=2100"`
	TransactionDate string          `json:"transactionDate" validate:"omitempty,datetime=2006-01-02"`
}
