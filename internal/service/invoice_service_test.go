package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

func seedCatalog(f *billingFixture) []models.Student {
	f.store.addStructure(models.FeeStructure{SchoolID: 1, ClassLevel: "S1", FeeType: "Tuition", Year: 2024, Amount: dec(1000)})
	f.store.addStructure(models.FeeStructure{SchoolID: 1, ClassLevel: "S1", FeeType: "Boarding", Year: 2024, BoardingStatus: strPtr("boarder"), Amount: dec(400)})
	return []models.Student{
		f.store.addStudent(models.Student{SchoolID: 1, FullName: "Day Scholar", ClassLevel: "S1", BoardingStatus: strPtr("day")}),
		f.store.addStudent(models.Student{SchoolID: 1, FullName: "Boarder", ClassLevel: "S1", BoardingStatus: strPtr("boarder")}),
		f.store.addStudent(models.Student{SchoolID: 1, FullName: "Senior", ClassLevel: "S4"}),
	}
}

func TestInvoiceServiceGenerateIsIdempotent(t *testing.T) {
	f := newBillingFixture()
	students := seedCatalog(f)
	ctx := context.Background()
	req := dto.GenerateInvoicesRequest{Term: 1, Year: 2024}

	first, err := f.invoices.Generate(ctx, bursar, req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.InvoicesCreated)
	assert.Equal(t, 1, first.InvoicesSkipped)

	second, err := f.invoices.Generate(ctx, bursar, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.InvoicesCreated)
	assert.Equal(t, len(students), second.InvoicesSkipped)

	invoices, err := f.invoices.ListForStudent(ctx, bursar, students[1].ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	full, err := f.invoices.Get(ctx, bursar, invoices[0].ID)
	require.NoError(t, err)
	assert.True(t, dec(1400).Equal(full.TotalAmount))
	assert.True(t, SumItems(full.Items).Equal(full.TotalAmount))
	assert.True(t, full.Balance.Equal(full.TotalAmount))
	assert.Equal(t, models.InvoiceUnpaid, full.Status)
	assert.Equal(t, InvoiceNumber(2024, 1, 1, students[1].ID), full.InvoiceNumber)
	require.NotNil(t, full.DueDate)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), *full.DueDate)

	debits := 0
	for _, e := range f.store.ledgerEntries() {
		if e.TransactionType == models.Debit && e.Category == models.CategoryInvoice {
			debits++
		}
	}
	assert.Equal(t, 2, debits)
}

func TestInvoiceServiceGenerateAppliesOverridesAndScholarships(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	f.store.addStructure(models.FeeStructure{SchoolID: 1, ClassLevel: "S2", FeeType: "Tuition", Year: 2024, Amount: dec(1000)})
	st := f.store.addStudent(models.Student{SchoolID: 1, FullName: "Scholar", ClassLevel: "S2"})

	_, err := f.catalog.UpsertOverride(ctx, bursar, dto.UpsertOverrideRequest{
		StudentID: st.ID, FeeType: "Tuition", Year: 2024, CustomAmount: dec(800), Reason: "staff child",
	})
	require.NoError(t, err)
	pct, err := f.catalog.CreateScholarship(ctx, bursar, dto.CreateScholarshipRequest{Name: "Merit", DiscountType: "percentage", DiscountValue: dec(10)})
	require.NoError(t, err)
	fixed, err := f.catalog.CreateScholarship(ctx, bursar, dto.CreateScholarshipRequest{Name: "Sports", DiscountType: "fixed", DiscountValue: dec(50), FeeTypes: []string{"Tuition"}})
	require.NoError(t, err)
	_, err = f.catalog.AssignScholarship(ctx, bursar, pct.ID, dto.AssignScholarshipRequest{StudentID: st.ID, Year: 2024})
	require.NoError(t, err)
	_, err = f.catalog.AssignScholarship(ctx, bursar, fixed.ID, dto.AssignScholarshipRequest{StudentID: st.ID, Year: 2024, Term: intPtr(1)})
	require.NoError(t, err)

	result, err := f.invoices.Generate(ctx, bursar, dto.GenerateInvoicesRequest{Term: 1, Year: 2024, ClassLevel: "S2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.InvoicesCreated)

	invoices, err := f.invoices.ListForStudent(ctx, bursar, st.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, dec(670).Equal(invoices[0].TotalAmount), invoices[0].TotalAmount.String())
	assert.True(t, invoices[0].AmountPaid.IsZero())
	assert.True(t, dec(670).Equal(invoices[0].Balance), invoices[0].Balance.String())

	full, err := f.invoices.Get(ctx, bursar, invoices[0].ID)
	require.NoError(t, err)
	require.Len(t, full.Items, 1)
	assert.Equal(t, "Tuition (staff child)", full.Items[0].Description)
}

func TestInvoiceServiceGenerateRequiresStructuresAndStudents(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()

	_, err := f.invoices.Generate(ctx, bursar, dto.GenerateInvoicesRequest{Term: 1, Year: 2024})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.store.addStructure(models.FeeStructure{SchoolID: 1, ClassLevel: "S1", FeeType: "Tuition", Year: 2024, Amount: dec(1000)})
	_, err = f.invoices.Generate(ctx, bursar, dto.GenerateInvoicesRequest{Term: 1, Year: 2024})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.invoices.Generate(ctx, bursar, dto.GenerateInvoicesRequest{Term: 4, Year: 2024})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestInvoiceServiceGenerateRollsBackWholeBatch(t *testing.T) {
	f := newBillingFixture()
	seedCatalog(f)
	f.store.fail["ledger.Append"] = errors.New("disk full")

	_, err := f.invoices.Generate(context.Background(), bursar, dto.GenerateInvoicesRequest{Term: 1, Year: 2024})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Empty(t, f.store.state.invoices)
	assert.Empty(t, f.store.state.ledger)
}

func TestInvoiceServiceGetOtherSchoolForbidden(t *testing.T) {
	f := newBillingFixture()
	_, inv := f.seedInvoice(500)

	other := models.Actor{UserID: "bursar-2", SchoolID: 2, Role: models.RoleBursar}
	_, err := f.invoices.Get(context.Background(), other, inv.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.invoices.Get(context.Background(), bursar, 9999)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.invoices.Get(context.Background(), models.Actor{}, inv.ID)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestInvoiceServiceUpdateAndReminder(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	_, inv := f.seedInvoice(500)

	notes := "family asked for extension"
	due := "2024-04-15"
	updated, err := f.invoices.Update(ctx, bursar, inv.ID, dto.UpdateInvoiceRequest{Notes: &notes, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, "2024-04-15", updated.DueDate.Format(dto.DateLayout))
	assert.True(t, dec(500).Equal(updated.TotalAmount))

	_, err = f.invoices.Update(ctx, bursar, inv.ID, dto.UpdateInvoiceRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	reminded, err := f.invoices.RecordReminder(ctx, bursar, inv.ID)
	require.NoError(t, err)
	reminded, err = f.invoices.RecordReminder(ctx, bursar, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reminded.ReminderCount)
	require.NotNil(t, reminded.LastReminderAt)
}
