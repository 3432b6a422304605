package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the side of a ledger entry.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Ledger categories.
const (
	CategoryInvoice         = "invoice"
	CategoryFeePayment      = "fee_payment"
	CategoryPaymentReversal = "payment_reversal"
	CategoryExpense         = "expense"
	CategoryIncome          = "income"
)

// FinanceTransaction is an append-only ledger row.
type FinanceTransaction struct {
	ID              int64           `db:"id" json:"id"`
	SchoolID        int64           `db:"school_id" json:"school_id"`
	StudentID       *int64          `db:"student_id" json:"student_id,omitempty"`
	InvoiceID       *int64          `db:"invoice_id" json:"invoice_id,omitempty"`
	PaymentID       *int64          `db:"payment_id" json:"payment_id,omitempty"`
	TransactionType TransactionType `db:"transaction_type" json:"transaction_type"`
	Category        string          `db:"category" json:"category"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Description     string          `db:"description" json:"description"`
	Term            *int            `db:"term" json:"term,omitempty"`
	Year            *int            `db:"year" json:"year,omitempty"`
	TransactionDate time.Time       `db:"transaction_date" json:"transaction_date"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// LedgerTotals sums a school's ledger by side and category. Reversals are the
// debits posted when a payment is voided.
type LedgerTotals struct {
	Credits   decimal.Decimal `db:"credits"`
	Debits    decimal.Decimal `db:"debits"`
	Expenses  decimal.Decimal `db:"expenses"`
	Reversals decimal.Decimal `db:"reversals"`
}

// StatementEntry is a ledger row with the running balance after it.
type StatementEntry struct {
	FinanceTransaction
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// Statement lists a student's ledger history.
type Statement struct {
	StudentID    int64            `json:"student_id"`
	Entries      []StatementEntry `json:"entries"`
	TotalDebits  decimal.Decimal  `json:"total_debits"`
	TotalCredits decimal.Decimal  `json:"total_credits"`
	Balance      decimal.Decimal  `json:"balance"`
}

// FinancialSummary reports school-level billing health for an optional term/year.
type FinancialSummary struct {
	Term           *int            `json:"term,omitempty"`
	Year           *int            `json:"year,omitempty"`
	TotalBilled    decimal.Decimal `json:"total_billed"`
	TotalCollected decimal.Decimal `json:"total_collected"`
	Revenue        decimal.Decimal `json:"revenue"`
	Expenses       decimal.Decimal `json:"expenses"`
	NetIncome      decimal.Decimal `json:"net_income"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	CollectionRate decimal.Decimal `json:"collection_rate"`
}
