package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// InvoiceNumber formats the deterministic invoice number for a student and period.
func InvoiceNumber(year, term int, schoolID, studentID int64) string {
	return fmt.Sprintf("INV-%d-T%d-%d-%05d", year, term, schoolID, studentID)
}

// SelectFeeStructures picks the catalog rows that apply to the student, one per fee type.
// A term-specific row beats an all-terms row and a boarding-specific row beats "all";
// remaining ties go to the lowest id. The result is ordered by fee type.
func SelectFeeStructures(structures []models.FeeStructure, student models.Student) []models.FeeStructure {
	best := make(map[string]models.FeeStructure)
	for _, fs := range structures {
		if fs.ClassLevel != student.ClassLevel {
			continue
		}
		if !fs.AppliesToAllBoarding() && *fs.BoardingStatus != student.Boarding() {
			continue
		}
		current, ok := best[fs.FeeType]
		if !ok || moreSpecific(fs, current) {
			best[fs.FeeType] = fs
		}
	}

	selected := make([]models.FeeStructure, 0, len(best))
	for _, fs := range best {
		selected = append(selected, fs)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].FeeType < selected[j].FeeType })
	return selected
}

func specificity(fs models.FeeStructure) int {
	score := 0
	if fs.Term != nil {
		score += 2
	}
	if !fs.AppliesToAllBoarding() {
		score++
	}
	return score
}

func moreSpecific(candidate, current models.FeeStructure) bool {
	cs, ps := specificity(candidate), specificity(current)
	if cs != ps {
		return cs > ps
	}
	return candidate.ID < current.ID
}

// ResolveOverride returns the active override for the fee type, preferring a
// term-specific one over an all-terms one.
func ResolveOverride(overrides []models.StudentFeeOverride, feeType string) *models.StudentFeeOverride {
	var found *models.StudentFeeOverride
	for i := range overrides {
		o := &overrides[i]
		if !o.Active || o.FeeType != feeType {
			continue
		}
		if found == nil || (found.Term == nil && o.Term != nil) {
			found = o
		}
	}
	return found
}

// ApplyDiscount reduces amount by a single scholarship. Percentage discounts round
// to the nearest whole unit; neither kind goes below zero.
func ApplyDiscount(amount decimal.Decimal, s models.Scholarship) decimal.Decimal {
	var out decimal.Decimal
	switch s.DiscountType {
	case models.DiscountPercentage:
		out = amount.Mul(decimal.NewFromInt(1).Sub(s.DiscountValue.Div(hundred))).Round(0)
	case models.DiscountFixed:
		out = amount.Sub(s.DiscountValue)
	default:
		return amount
	}
	return decimal.Max(decimal.Zero, out)
}

// ApplyScholarships stacks every covering scholarship in ascending assignment id.
func ApplyScholarships(amount decimal.Decimal, feeType string, assignments []models.ScholarshipAssignment) decimal.Decimal {
	ordered := make([]models.ScholarshipAssignment, len(assignments))
	copy(ordered, assignments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].AssignmentID < ordered[j].AssignmentID })

	for _, a := range ordered {
		s := a.Scholarship()
		if !s.Covers(feeType) {
			continue
		}
		amount = ApplyDiscount(amount, s)
	}
	return amount
}

// ResolveStudentFees builds the invoice lines for one student: catalog price,
// replaced by an override when present, then discounted by scholarships.
func ResolveStudentFees(student models.Student, structures []models.FeeStructure, overrides []models.StudentFeeOverride, assignments []models.ScholarshipAssignment) []models.InvoiceItem {
	selected := SelectFeeStructures(structures, student)
	items := make([]models.InvoiceItem, 0, len(selected))
	for _, fs := range selected {
		amount := fs.Amount
		description := fs.FeeType
		if o := ResolveOverride(overrides, fs.FeeType); o != nil {
			amount = o.CustomAmount
			if o.Reason != "" {
				description = fmt.Sprintf("%s (%s)", fs.FeeType, o.Reason)
			}
		}
		amount = ApplyScholarships(amount, fs.FeeType, assignments)
		items = append(items, models.InvoiceItem{
			FeeType:     fs.FeeType,
			Description: description,
			Amount:      amount,
		})
	}
	return items
}

// SumItems totals invoice lines.
func SumItems(items []models.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
