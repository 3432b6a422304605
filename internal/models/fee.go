package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// BoardingAll marks a fee structure that applies regardless of boarding status.
const BoardingAll = "all"

// DiscountType enumerates scholarship discount kinds.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// ScholarshipAssignmentActive is the only assignment status applied during invoicing.
const ScholarshipAssignmentActive = "active"

// FeeStructure is one priced row of the fee catalog. A nil Term covers every term of the year.
type FeeStructure struct {
	ID             int64           `db:"id" json:"id"`
	SchoolID       int64           `db:"school_id" json:"school_id"`
	ClassLevel     string          `db:"class_level" json:"class_level"`
	FeeType        string          `db:"fee_type" json:"fee_type"`
	Term           *int            `db:"term" json:"term,omitempty"`
	Year           int             `db:"year" json:"year"`
	BoardingStatus *string         `db:"boarding_status" json:"boarding_status,omitempty"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Active         bool            `db:"is_active" json:"is_active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AppliesToAllBoarding reports whether the row ignores the student's boarding status.
func (f FeeStructure) AppliesToAllBoarding() bool {
	return f.BoardingStatus == nil || *f.BoardingStatus == "" || *f.BoardingStatus == BoardingAll
}

// FeeStructureFilter narrows catalog listings.
type FeeStructureFilter struct {
	ClassLevel string
	Term       *int
	Year       int
}

// StudentFeeOverride replaces the catalog amount of one fee type for one student.
type StudentFeeOverride struct {
	ID           int64           `db:"id" json:"id"`
	SchoolID     int64           `db:"school_id" json:"school_id"`
	StudentID    int64           `db:"student_id" json:"student_id"`
	FeeType      string          `db:"fee_type" json:"fee_type"`
	Term         *int            `db:"term" json:"term,omitempty"`
	Year         int             `db:"year" json:"year"`
	CustomAmount decimal.Decimal `db:"custom_amount" json:"custom_amount"`
	Reason       string          `db:"reason" json:"reason"`
	Active       bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Scholarship is a discount rule. Empty FeeTypes means every fee type.
type Scholarship struct {
	ID            int64           `db:"id" json:"id"`
	SchoolID      int64           `db:"school_id" json:"school_id"`
	Name          string          `db:"name" json:"name"`
	DiscountType  DiscountType    `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	FeeTypes      pq.StringArray  `db:"fee_types" json:"fee_types"`
	ValidFrom     *time.Time      `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil    *time.Time      `db:"valid_until" json:"valid_until,omitempty"`
	Active        bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Covers reports whether the scholarship discounts the given fee type.
func (s Scholarship) Covers(feeType string) bool {
	if len(s.FeeTypes) == 0 {
		return true
	}
	for _, ft := range s.FeeTypes {
		if ft == feeType {
			return true
		}
	}
	return false
}

// StudentScholarship assigns a scholarship to a student for a term (nil = all terms) of a year.
type StudentScholarship struct {
	ID            int64     `db:"id" json:"id"`
	SchoolID      int64     `db:"school_id" json:"school_id"`
	StudentID     int64     `db:"student_id" json:"student_id"`
	ScholarshipID int64     `db:"scholarship_id" json:"scholarship_id"`
	Term          *int      `db:"term" json:"term,omitempty"`
	Year          int       `db:"year" json:"year"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ScholarshipAssignment joins an active assignment with its discount rule.
type ScholarshipAssignment struct {
	AssignmentID  int64           `db:"assignment_id"`
	StudentID     int64           `db:"student_id"`
	Term          *int            `db:"term"`
	Year          int             `db:"year"`
	ScholarshipID int64           `db:"scholarship_id"`
	DiscountType  DiscountType    `db:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value"`
	FeeTypes      pq.StringArray  `db:"fee_types"`
}

// Scholarship returns the discount rule carried by the assignment.
func (a ScholarshipAssignment) Scholarship() Scholarship {
	return Scholarship{
		ID:            a.ScholarshipID,
		DiscountType:  a.DiscountType,
		DiscountValue: a.DiscountValue,
		FeeTypes:      a.FeeTypes,
	}
}
