package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

func TestBuildInstallmentScheduleMonthly(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	items := BuildInstallmentSchedule(dec(1200), dec(200), 5, models.FrequencyMonthly, start)

	require.Len(t, items, 5)
	for i, item := range items {
		assert.Equal(t, i+1, item.InstallmentNumber)
		assert.True(t, dec(200).Equal(item.Amount))
		assert.True(t, item.PaidAmount.IsZero())
		assert.Equal(t, models.InstallmentPending, item.Status)
		assert.Equal(t, start.AddDate(0, i+1, 0), item.DueDate)
	}
}

func TestBuildInstallmentScheduleWeeklyRounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := BuildInstallmentSchedule(dec(1000), dec(0), 3, models.FrequencyWeekly, start)

	require.Len(t, items, 3)
	assert.True(t, dec(333).Equal(items[0].Amount))
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), items[0].DueDate)
	assert.Equal(t, time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), items[2].DueDate)
}

func planRequest(studentID int64, invoiceID *int64) dto.CreatePaymentPlanRequest {
	return dto.CreatePaymentPlanRequest{
		StudentID:        studentID,
		InvoiceID:        invoiceID,
		TotalAmount:      dec(1200),
		DownPayment:      dec(200),
		InstallmentCount: 5,
		Frequency:        "monthly",
		StartDate:        "2024-01-15",
	}
}

func TestPaymentPlanServiceCreateTakesPeriodFromInvoice(t *testing.T) {
	f := newBillingFixture()
	st, inv := f.seedInvoice(1200)

	plan, err := f.plans.Create(context.Background(), bursar, planRequest(st.ID, &inv.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Term)
	assert.Equal(t, 2024, plan.Year)
	assert.Equal(t, models.PlanActive, plan.Status)
	require.Len(t, plan.Installments, 5)
	assert.NotZero(t, plan.Installments[0].ID)

	loaded, err := f.plans.Get(context.Background(), bursar, plan.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Installments, 5)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), loaded.Installments[4].DueDate)
}

func TestPaymentPlanServiceCreateValidation(t *testing.T) {
	f := newBillingFixture()
	st, inv := f.seedInvoice(1200)
	ctx := context.Background()

	req := planRequest(st.ID, &inv.ID)
	req.DownPayment = dec(1200)
	_, err := f.plans.Create(ctx, bursar, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = planRequest(st.ID, &inv.ID)
	req.InstallmentCount = 37
	_, err = f.plans.Create(ctx, bursar, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req = planRequest(st.ID, &inv.ID)
	req.Frequency = "daily"
	_, err = f.plans.Create(ctx, bursar, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.plans.Create(ctx, bursar, planRequest(st.ID, nil))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	other := models.Actor{UserID: "bursar-2", SchoolID: 2, Role: models.RoleBursar}
	_, err = f.plans.Create(ctx, other, planRequest(st.ID, &inv.ID))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	missing := int64(4242)
	_, err = f.plans.Create(ctx, bursar, planRequest(st.ID, &missing))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Empty(t, f.store.state.plans)
	assert.Empty(t, f.store.state.installments)
}

func TestPaymentPlanServicePayInstallment(t *testing.T) {
	f := newBillingFixture()
	st, inv := f.seedInvoice(1200)
	ctx := context.Background()
	plan, err := f.plans.Create(ctx, bursar, planRequest(st.ID, &inv.ID))
	require.NoError(t, err)
	first := plan.Installments[0]

	res, err := f.plans.PayInstallment(ctx, bursar, plan.ID, first.ID, dto.PayInstallmentRequest{Amount: dec(150)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "REC-2024-0001", res.ReceiptNumber)
	assert.Equal(t, string(models.InstallmentPartial), res.Status)
	assert.True(t, dec(150).Equal(res.PaidAmount))

	before := f.store.invoice(inv.ID)
	payments := f.store.paymentCount()
	_, err = f.plans.PayInstallment(ctx, bursar, plan.ID, first.ID, dto.PayInstallmentRequest{Amount: dec(51)})
	assert.ErrorIs(t, err, appErrors.ErrOverpayment)
	assert.Equal(t, before, f.store.invoice(inv.ID))
	assert.Equal(t, payments, f.store.paymentCount())

	res, err = f.plans.PayInstallment(ctx, bursar, plan.ID, first.ID, dto.PayInstallmentRequest{Amount: dec(50)})
	require.NoError(t, err)
	assert.Equal(t, string(models.InstallmentPaid), res.Status)
	assert.Equal(t, "REC-2024-0002", res.ReceiptNumber)

	stored := f.store.invoice(inv.ID)
	assert.True(t, dec(200).Equal(stored.AmountPaid))
	assert.True(t, dec(1000).Equal(stored.Balance))

	loaded, err := f.plans.Get(ctx, bursar, plan.ID)
	require.NoError(t, err)
	for _, item := range loaded.Installments {
		assert.True(t, item.PaidAmount.LessThanOrEqual(item.Amount))
	}

	_, err = f.plans.PayInstallment(ctx, bursar, plan.ID, 99999, dto.PayInstallmentRequest{Amount: dec(10)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	other := models.Actor{UserID: "bursar-2", SchoolID: 2, Role: models.RoleBursar}
	_, err = f.plans.PayInstallment(ctx, other, plan.ID, first.ID, dto.PayInstallmentRequest{Amount: dec(10)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestPaymentPlanServiceCompletesSettledPlan(t *testing.T) {
	f := newBillingFixture()
	st := f.store.addStudent(models.Student{SchoolID: 1, FullName: "Unlinked", ClassLevel: "S2"})
	ctx := context.Background()
	req := planRequest(st.ID, nil)
	req.Term, req.Year = intPtr(2), intPtr(2024)
	req.InstallmentCount = 1
	plan, err := f.plans.Create(ctx, bursar, req)
	require.NoError(t, err)

	_, err = f.plans.PayInstallment(ctx, bursar, plan.ID, plan.Installments[0].ID, dto.PayInstallmentRequest{Amount: dec(1000)})
	require.NoError(t, err)

	loaded, err := f.plans.Get(ctx, bursar, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanCompleted, loaded.Status)
}

func TestPaymentPlanServiceReconcileDownPayments(t *testing.T) {
	f := newBillingFixture()
	st, inv := f.seedInvoice(1200)
	ctx := context.Background()
	plan, err := f.plans.Create(ctx, bursar, planRequest(st.ID, &inv.ID))
	require.NoError(t, err)

	pending, err := f.plans.PendingDownPayments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	result, err := f.plans.ReconcileDownPayments(ctx, bursar)
	require.NoError(t, err)
	assert.Equal(t, dto.ReconcileResult{PlansChecked: 1, Created: 1}, *result)

	stored := f.store.invoice(inv.ID)
	assert.True(t, dec(200).Equal(stored.AmountPaid))
	assert.Equal(t, models.InvoicePartial, stored.Status)

	again, err := f.plans.ReconcileDownPayments(ctx, bursar)
	require.NoError(t, err)
	assert.Equal(t, dto.ReconcileResult{}, *again)

	created, err := f.plans.BackfillPlan(ctx, *plan, "reconcile")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, dec(200).Equal(f.store.invoice(inv.ID).AmountPaid))

	next, err := f.payments.RecordPayment(ctx, bursar, paymentRequest(st.ID, 100))
	require.NoError(t, err)
	assert.Equal(t, "REC-2024-0002", next.ReceiptNumber)
}
