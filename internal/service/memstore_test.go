package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// memState is the committed content of the in-memory billing store.
type memState struct {
	students     map[int64]models.Student
	structures   []models.FeeStructure
	overrides    []models.StudentFeeOverride
	scholarships map[int64]models.Scholarship
	assignments  []models.StudentScholarship
	invoices     map[int64]models.Invoice
	payments     map[int64]models.FeePayment
	ledger       []models.FinanceTransaction
	counters     map[string]int64
	plans        map[int64]models.PaymentPlan
	installments map[int64]models.PlanInstallment
}

func (s memState) clone() memState {
	out := memState{
		students:     make(map[int64]models.Student, len(s.students)),
		structures:   append([]models.FeeStructure(nil), s.structures...),
		overrides:    append([]models.StudentFeeOverride(nil), s.overrides...),
		scholarships: make(map[int64]models.Scholarship, len(s.scholarships)),
		assignments:  append([]models.StudentScholarship(nil), s.assignments...),
		invoices:     make(map[int64]models.Invoice, len(s.invoices)),
		payments:     make(map[int64]models.FeePayment, len(s.payments)),
		ledger:       append([]models.FinanceTransaction(nil), s.ledger...),
		counters:     make(map[string]int64, len(s.counters)),
		plans:        make(map[int64]models.PaymentPlan, len(s.plans)),
		installments: make(map[int64]models.PlanInstallment, len(s.installments)),
	}
	for k, v := range s.students {
		out.students[k] = v
	}
	for k, v := range s.scholarships {
		out.scholarships[k] = v
	}
	for k, v := range s.invoices {
		v.Items = append([]models.InvoiceItem(nil), v.Items...)
		out.invoices[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	for k, v := range s.plans {
		out.plans[k] = v
	}
	for k, v := range s.installments {
		out.installments[k] = v
	}
	return out
}

type memTxKey struct{}

// memStore fakes postgres for service tests. WithinTx serialises transactions and
// restores the pre-transaction state when fn fails.
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state memState
	seq   int64
	fail  map[string]error
	now   time.Time
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{}.clone(),
		fail:  map[string]error{},
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *memStore) injected(op string) error {
	return m.fail[op]
}

func uniqueViolation(constraint string) error {
	return fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: constraint})
}

func termMatches(rowTerm *int, term int) bool {
	return rowTerm == nil || *rowTerm == term
}

func periodMatches(term, year int, wantTerm, wantYear *int) bool {
	return (wantTerm == nil || *wantTerm == term) && (wantYear == nil || *wantYear == year)
}

func optionalPeriodMatches(term, year *int, wantTerm, wantYear *int) bool {
	if wantTerm != nil && (term == nil || *term != *wantTerm) {
		return false
	}
	if wantYear != nil && (year == nil || *year != *wantYear) {
		return false
	}
	return true
}

// seeding helpers

func (m *memStore) addStudent(st models.Student) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == 0 {
		st.ID = m.nextID()
	}
	st.Active = true
	m.state.students[st.ID] = st
	return st
}

func (m *memStore) addStructure(fs models.FeeStructure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs.ID = m.nextID()
	fs.Active = true
	m.state.structures = append(m.state.structures, fs)
}

func (m *memStore) addInvoice(inv models.Invoice) models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = m.nextID()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = m.now
	}
	m.state.invoices[inv.ID] = inv
	return inv
}

func (m *memStore) invoice(id int64) models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.invoices[id]
}

func (m *memStore) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.payments)
}

func (m *memStore) ledgerEntries() []models.FinanceTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FinanceTransaction(nil), m.state.ledger...)
}

// students

type memStudents struct{ *memStore }

func (r memStudents) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.state.students[id]
	if !ok {
		return nil, fmt.Errorf("find student %d: %w", id, sql.ErrNoRows)
	}
	return &st, nil
}

func (r memStudents) ListActive(ctx context.Context, schoolID int64, classLevel string) ([]models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Student
	for _, st := range r.state.students {
		if st.SchoolID == schoolID && st.Active && (classLevel == "" || st.ClassLevel == classLevel) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fee structures

type memStructures struct{ *memStore }

func (r memStructures) ListActiveForTerm(ctx context.Context, schoolID int64, term, year int, classLevel string) ([]models.FeeStructure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeeStructure
	for _, fs := range r.state.structures {
		if fs.SchoolID == schoolID && fs.Active && fs.Year == year && termMatches(fs.Term, term) &&
			(classLevel == "" || fs.ClassLevel == classLevel) {
			out = append(out, fs)
		}
	}
	return out, nil
}

func (r memStructures) List(ctx context.Context, schoolID int64, filter models.FeeStructureFilter) ([]models.FeeStructure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FeeStructure
	for _, fs := range r.state.structures {
		if fs.SchoolID == schoolID && (filter.Year == 0 || fs.Year == filter.Year) &&
			(filter.ClassLevel == "" || fs.ClassLevel == filter.ClassLevel) {
			out = append(out, fs)
		}
	}
	return out, nil
}

func (r memStructures) Upsert(ctx context.Context, fs *models.FeeStructure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := func(f models.FeeStructure) string {
		term, boarding := 0, models.BoardingAll
		if f.Term != nil {
			term = *f.Term
		}
		if f.BoardingStatus != nil {
			boarding = *f.BoardingStatus
		}
		return fmt.Sprintf("%d|%s|%s|%d|%d|%s", f.SchoolID, f.ClassLevel, f.FeeType, term, f.Year, boarding)
	}
	for i, existing := range r.state.structures {
		if key(existing) == key(*fs) {
			fs.ID = existing.ID
			r.state.structures[i] = *fs
			return nil
		}
	}
	fs.ID = r.nextID()
	r.state.structures = append(r.state.structures, *fs)
	return nil
}

// overrides

type memOverrides struct{ *memStore }

func (r memOverrides) ListActiveForTerm(ctx context.Context, schoolID int64, term, year int) ([]models.StudentFeeOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StudentFeeOverride
	for _, o := range r.state.overrides {
		if o.SchoolID == schoolID && o.Active && o.Year == year && termMatches(o.Term, term) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memOverrides) Upsert(ctx context.Context, o *models.StudentFeeOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.state.overrides {
		if existing.StudentID == o.StudentID && existing.FeeType == o.FeeType && existing.Year == o.Year &&
			sameTerm(existing.Term, o.Term) {
			o.ID = existing.ID
			r.state.overrides[i] = *o
			return nil
		}
	}
	o.ID = r.nextID()
	r.state.overrides = append(r.state.overrides, *o)
	return nil
}

func sameTerm(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// scholarships

type memScholarships struct{ *memStore }

func (r memScholarships) Create(ctx context.Context, s *models.Scholarship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.nextID()
	s.CreatedAt = r.now
	r.state.scholarships[s.ID] = *s
	return nil
}

func (r memScholarships) FindByID(ctx context.Context, id int64) (*models.Scholarship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.scholarships[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r memScholarships) Assign(ctx context.Context, a *models.StudentScholarship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.state.assignments {
		if existing.StudentID == a.StudentID && existing.ScholarshipID == a.ScholarshipID &&
			existing.Year == a.Year && sameTerm(existing.Term, a.Term) {
			r.state.assignments[i].Status = a.Status
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	a.ID = r.nextID()
	a.CreatedAt = r.now
	r.state.assignments = append(r.state.assignments, *a)
	return nil
}

func (r memScholarships) ListActiveAssignments(ctx context.Context, schoolID int64, term, year int, asOf time.Time) ([]models.ScholarshipAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ScholarshipAssignment
	for _, a := range r.state.assignments {
		s := r.state.scholarships[a.ScholarshipID]
		if a.SchoolID != schoolID || a.Status != models.ScholarshipAssignmentActive || !s.Active ||
			a.Year != year || !termMatches(a.Term, term) {
			continue
		}
		if (s.ValidFrom != nil && s.ValidFrom.After(asOf)) || (s.ValidUntil != nil && s.ValidUntil.Before(asOf)) {
			continue
		}
		out = append(out, models.ScholarshipAssignment{
			AssignmentID:  a.ID,
			StudentID:     a.StudentID,
			Term:          a.Term,
			Year:          a.Year,
			ScholarshipID: s.ID,
			DiscountType:  s.DiscountType,
			DiscountValue: s.DiscountValue,
			FeeTypes:      s.FeeTypes,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

// invoices

type memInvoices struct{ *memStore }

func (r memInvoices) StudentIDsWithInvoice(ctx context.Context, schoolID int64, term, year int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, inv := range r.state.invoices {
		if inv.SchoolID == schoolID && inv.Term == term && inv.Year == year {
			ids = append(ids, inv.StudentID)
		}
	}
	return ids, nil
}

func (r memInvoices) Create(ctx context.Context, inv *models.Invoice) (bool, error) {
	if err := r.injected("invoices.Create"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.invoices {
		if existing.SchoolID == inv.SchoolID && existing.StudentID == inv.StudentID &&
			existing.Term == inv.Term && existing.Year == inv.Year {
			return false, nil
		}
	}
	inv.ID = r.nextID()
	inv.CreatedAt = r.now
	inv.UpdatedAt = r.now
	for i := range inv.Items {
		inv.Items[i].ID = r.nextID()
		inv.Items[i].InvoiceID = inv.ID
	}
	stored := *inv
	stored.Items = append([]models.InvoiceItem(nil), inv.Items...)
	r.state.invoices[inv.ID] = stored
	return true, nil
}

func (r memInvoices) FindForTermForUpdate(ctx context.Context, schoolID, studentID int64, term, year int) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.state.invoices {
		if inv.SchoolID == schoolID && inv.StudentID == studentID && inv.Term == term && inv.Year == year {
			inv.Items = nil
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("find invoice for term: %w", sql.ErrNoRows)
}

func (r memInvoices) FindByID(ctx context.Context, id int64) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return nil, fmt.Errorf("find invoice %d: %w", id, sql.ErrNoRows)
	}
	inv.Items = append([]models.InvoiceItem(nil), inv.Items...)
	return &inv, nil
}

func (r memInvoices) ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Invoice
	for _, inv := range r.state.invoices {
		if inv.SchoolID == schoolID && inv.StudentID == studentID {
			inv.Items = nil
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memInvoices) ApplyPayment(ctx context.Context, id int64, delta decimal.Decimal) (*models.Invoice, error) {
	if err := r.injected("invoices.ApplyPayment"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	inv.AmountPaid = decimal.Max(decimal.Zero, inv.AmountPaid.Add(delta))
	inv.Balance = decimal.Max(decimal.Zero, inv.TotalAmount.Sub(inv.AmountPaid))
	switch {
	case inv.AmountPaid.GreaterThanOrEqual(inv.TotalAmount):
		inv.Status = models.InvoicePaid
	case inv.AmountPaid.IsPositive():
		inv.Status = models.InvoicePartial
	default:
		inv.Status = models.InvoiceUnpaid
	}
	r.state.invoices[id] = inv
	return &inv, nil
}

func (r memInvoices) UpdateDetails(ctx context.Context, id int64, notes *string, dueDate *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return sql.ErrNoRows
	}
	if notes != nil {
		inv.Notes = *notes
	}
	if dueDate != nil {
		inv.DueDate = dueDate
	}
	r.state.invoices[id] = inv
	return nil
}

func (r memInvoices) RecordReminder(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.state.invoices[id]
	if !ok {
		return sql.ErrNoRows
	}
	inv.ReminderCount++
	inv.LastReminderAt = &at
	r.state.invoices[id] = inv
	return nil
}

func (r memInvoices) ListOutstanding(ctx context.Context, schoolID int64, filter models.DebtorFilter) ([]models.OutstandingInvoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OutstandingInvoice
	for _, inv := range r.state.invoices {
		st := r.state.students[inv.StudentID]
		if inv.SchoolID != schoolID || !inv.Balance.IsPositive() || !periodMatches(inv.Term, inv.Year, filter.Term, filter.Year) ||
			(filter.ClassLevel != "" && st.ClassLevel != filter.ClassLevel) {
			continue
		}
		out = append(out, models.OutstandingInvoice{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			StudentID:     inv.StudentID,
			StudentName:   st.FullName,
			ClassLevel:    st.ClassLevel,
			Term:          inv.Term,
			Year:          inv.Year,
			TotalAmount:   inv.TotalAmount,
			AmountPaid:    inv.AmountPaid,
			Balance:       inv.Balance,
			DueDate:       inv.DueDate,
			CreatedAt:     inv.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceID < out[j].InvoiceID })
	return out, nil
}

func (r memInvoices) Totals(ctx context.Context, schoolID int64, term, year *int) (models.InvoiceTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := models.InvoiceTotals{Billed: decimal.Zero, Outstanding: decimal.Zero}
	for _, inv := range r.state.invoices {
		if inv.SchoolID == schoolID && periodMatches(inv.Term, inv.Year, term, year) {
			totals.Billed = totals.Billed.Add(inv.TotalAmount)
			totals.Outstanding = totals.Outstanding.Add(inv.Balance)
		}
	}
	return totals, nil
}

// payments

type memPayments struct{ *memStore }

func (r memPayments) insert(p *models.FeePayment) error {
	for _, existing := range r.state.payments {
		if existing.SchoolID == p.SchoolID && existing.Year == p.Year && existing.ReceiptNumber == p.ReceiptNumber {
			return uniqueViolation("fee_payments_receipt_key")
		}
		if p.IdempotencyKey != nil && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
			return uniqueViolation("fee_payments_idempotency_key_key")
		}
	}
	p.ID = r.nextID()
	p.CreatedAt = r.now
	r.state.payments[p.ID] = *p
	return nil
}

func (r memPayments) Create(ctx context.Context, p *models.FeePayment) error {
	if err := r.injected("payments.Create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(p)
}

func (r memPayments) CreateDownPayment(ctx context.Context, p *models.FeePayment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.state.payments {
		if existing.Kind == models.PaymentDownPayment && existing.PaymentPlanID != nil &&
			p.PaymentPlanID != nil && *existing.PaymentPlanID == *p.PaymentPlanID {
			return false, nil
		}
	}
	return true, r.insert(p)
}

func (r memPayments) FindByID(ctx context.Context, id int64) (*models.FeePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok {
		return nil, fmt.Errorf("find fee payment %d: %w", id, sql.ErrNoRows)
	}
	return &p, nil
}

func (r memPayments) FindByIdempotencyKey(ctx context.Context, key string) (*models.FeePayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.state.payments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("find fee payment by idempotency key: %w", sql.ErrNoRows)
}

func (r memPayments) MarkDeleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.payments[id]
	if !ok || p.Deleted {
		return false, nil
	}
	p.Deleted = true
	p.DeletedAt = &at
	r.state.payments[id] = p
	return true, nil
}

func (r memPayments) CollectedTotal(ctx context.Context, schoolID int64, term, year *int) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, p := range r.state.payments {
		if p.SchoolID == schoolID && !p.Deleted && periodMatches(p.Term, p.Year, term, year) {
			total = total.Add(p.AmountPaid)
		}
	}
	return total, nil
}

// receipts

type memReceipts struct{ *memStore }

func (r memReceipts) Next(ctx context.Context, schoolID int64, year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%d|%d", schoolID, year)
	r.state.counters[key]++
	return r.state.counters[key], nil
}

func (r memReceipts) EnsureAtLeast(ctx context.Context, schoolID int64, year int, value int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%d|%d", schoolID, year)
	if r.state.counters[key] < value {
		r.state.counters[key] = value
	}
	return nil
}

// ledger

type memLedger struct{ *memStore }

func (r memLedger) Append(ctx context.Context, tx *models.FinanceTransaction) error {
	if err := r.injected("ledger.Append"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = r.nextID()
	tx.CreatedAt = r.now
	r.state.ledger = append(r.state.ledger, *tx)
	return nil
}

func (r memLedger) ListByStudent(ctx context.Context, schoolID, studentID int64) ([]models.FinanceTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.FinanceTransaction
	for _, e := range r.state.ledger {
		if e.SchoolID == schoolID && e.StudentID != nil && *e.StudentID == studentID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memLedger) Totals(ctx context.Context, schoolID int64, term, year *int) (models.LedgerTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := models.LedgerTotals{Credits: decimal.Zero, Debits: decimal.Zero, Expenses: decimal.Zero, Reversals: decimal.Zero}
	for _, e := range r.state.ledger {
		if e.SchoolID != schoolID || !optionalPeriodMatches(e.Term, e.Year, term, year) {
			continue
		}
		if e.TransactionType == models.Credit {
			totals.Credits = totals.Credits.Add(e.Amount)
			continue
		}
		totals.Debits = totals.Debits.Add(e.Amount)
		switch e.Category {
		case models.CategoryExpense:
			totals.Expenses = totals.Expenses.Add(e.Amount)
		case models.CategoryPaymentReversal:
			totals.Reversals = totals.Reversals.Add(e.Amount)
		}
	}
	return totals, nil
}

// payment plans

type memPlans struct{ *memStore }

func (r memPlans) Create(ctx context.Context, p *models.PaymentPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.nextID()
	p.CreatedAt = r.now
	stored := *p
	stored.Installments = nil
	r.state.plans[p.ID] = stored
	return nil
}

func (r memPlans) CreateInstallments(ctx context.Context, planID int64, items []models.PlanInstallment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range items {
		items[i].ID = r.nextID()
		items[i].PlanID = planID
		r.state.installments[items[i].ID] = items[i]
	}
	return nil
}

func (r memPlans) FindByID(ctx context.Context, id int64) (*models.PaymentPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.state.plans[id]
	if !ok {
		return nil, fmt.Errorf("find payment plan %d: %w", id, sql.ErrNoRows)
	}
	return &p, nil
}

func (r memPlans) ListInstallments(ctx context.Context, planID int64) ([]models.PlanInstallment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PlanInstallment
	for _, item := range r.state.installments {
		if item.PlanID == planID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out, nil
}

func (r memPlans) FindInstallmentForUpdate(ctx context.Context, planID, installmentID int64) (*models.PlanInstallment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.state.installments[installmentID]
	if !ok || item.PlanID != planID {
		return nil, fmt.Errorf("find installment %d: %w", installmentID, sql.ErrNoRows)
	}
	return &item, nil
}

func (r memPlans) ApplyInstallmentPayment(ctx context.Context, installmentID int64, amount decimal.Decimal) (*models.PlanInstallment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.state.installments[installmentID]
	if !ok || item.PaidAmount.Add(amount).GreaterThan(item.Amount) {
		return nil, false, nil
	}
	item.PaidAmount = item.PaidAmount.Add(amount)
	item.Status = models.InstallmentPartial
	if item.PaidAmount.GreaterThanOrEqual(item.Amount) {
		item.Status = models.InstallmentPaid
	}
	r.state.installments[installmentID] = item
	return &item, true, nil
}

func (r memPlans) CompleteIfSettled(ctx context.Context, planID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan := r.state.plans[planID]
	if plan.Status == models.PlanCompleted {
		return false, nil
	}
	for _, item := range r.state.installments {
		if item.PlanID == planID && item.Status != models.InstallmentPaid {
			return false, nil
		}
	}
	plan.Status = models.PlanCompleted
	r.state.plans[planID] = plan
	return true, nil
}

func (r memPlans) ListMissingDownPayment(ctx context.Context, schoolID int64) ([]models.PaymentPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recorded := map[int64]bool{}
	for _, p := range r.state.payments {
		if p.Kind == models.PaymentDownPayment && p.PaymentPlanID != nil {
			recorded[*p.PaymentPlanID] = true
		}
	}
	var out []models.PaymentPlan
	for _, plan := range r.state.plans {
		if plan.DownPayment.IsPositive() && !recorded[plan.ID] && (schoolID == 0 || plan.SchoolID == schoolID) {
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memCache is a JSON-backed CacheRepository.
type memCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, pattern)
	prefix := pattern[:len(pattern)-1]
	for key := range c.items {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.items, key)
		}
	}
	return nil
}

// billingFixture wires every billing service to one memStore.
type billingFixture struct {
	store    *memStore
	cache    *memCache
	metrics  *MetricsService
	catalog  *FeeCatalogService
	invoices *InvoiceService
	payments *PaymentService
	plans    *PaymentPlanService
	ledger   *LedgerService
	debtors  *DebtorService
}

func newBillingFixture() *billingFixture {
	store := newMemStore()
	cacheRepo := newMemCache()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	clock := func() time.Time { return store.now }

	f := &billingFixture{store: store, cache: cacheRepo, metrics: metrics}
	f.catalog = NewFeeCatalogService(memStructures{store}, memOverrides{store}, memScholarships{store}, memStudents{store}, nil, nil)
	f.invoices = NewInvoiceService(store, InvoiceStores{
		Structures:   memStructures{store},
		Overrides:    memOverrides{store},
		Scholarships: memScholarships{store},
		Students:     memStudents{store},
		Invoices:     memInvoices{store},
		Ledger:       memLedger{store},
	}, cache, metrics, nil, nil, 30)
	f.invoices.now = clock
	f.payments = NewPaymentService(store, PaymentStores{
		Students: memStudents{store},
		Invoices: memInvoices{store},
		Payments: memPayments{store},
		Receipts: memReceipts{store},
		Ledger:   memLedger{store},
	}, cache, metrics, nil, nil, ReceiptOptions{SchoolLabel: "Test School", Currency: "UGX"})
	f.payments.now = clock
	f.plans = NewPaymentPlanService(store, PaymentPlanStores{
		Students: memStudents{store},
		Invoices: memInvoices{store},
		Plans:    memPlans{store},
		Payments: memPayments{store},
		Receipts: memReceipts{store},
		Ledger:   memLedger{store},
	}, cache, metrics, nil, nil)
	f.plans.now = clock
	f.ledger = NewLedgerService(memStudents{store}, memLedger{store}, memInvoices{store}, memPayments{store}, cache, nil, nil)
	f.ledger.now = clock
	f.debtors = NewDebtorService(memInvoices{store}, cache, nil, 50, 200)
	f.debtors.now = clock
	return f
}

var bursar = models.Actor{UserID: "bursar-1", SchoolID: 1, Role: models.RoleBursar}

// seedInvoice stores an unpaid invoice of the given total for a fresh student.
func (f *billingFixture) seedInvoice(total int64) (models.Student, models.Invoice) {
	st := f.store.addStudent(models.Student{SchoolID: bursar.SchoolID, FullName: "Amina N", ClassLevel: "S1"})
	inv := f.store.addInvoice(models.Invoice{
		SchoolID:      bursar.SchoolID,
		StudentID:     st.ID,
		Term:          1,
		Year:          2024,
		InvoiceNumber: InvoiceNumber(2024, 1, bursar.SchoolID, st.ID),
		TotalAmount:   dec(total),
		AmountPaid:    decimal.Zero,
		Balance:       dec(total),
		Status:        models.InvoiceUnpaid,
	})
	return st, inv
}
