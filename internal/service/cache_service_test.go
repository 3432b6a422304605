package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	svc.Set(context.Background(), "billing:1:summary", map[string]int{"a": 1}, 0)
	var dest map[string]int
	assert.False(t, svc.Get(context.Background(), "billing:1:summary", &dest))
	svc.InvalidateSchool(context.Background(), 1)

	assert.Empty(t, repo.items)
	assert.Empty(t, repo.deleted)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	nilSvc.InvalidateSchool(context.Background(), 1)
}

func TestCacheServiceTracksHitsAndMisses(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemCache(), metrics, time.Minute, nil, true)
	ctx := context.Background()

	var dest []int
	assert.False(t, svc.Get(ctx, "billing:2:debtors", &dest))
	svc.Set(ctx, "billing:2:debtors", []int{1, 2}, 0)
	assert.True(t, svc.Get(ctx, "billing:2:debtors", &dest))
	assert.Equal(t, []int{1, 2}, dest)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.cacheHitRatio))
}

func TestInvalidateSchoolOnlyTouchesThatSchool(t *testing.T) {
	repo := newMemCache()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	svc.Set(ctx, billingCacheKey(1, "summary", "all", 2024), 1, 0)
	svc.Set(ctx, billingCacheKey(12, "summary", "all", 2024), 1, 0)
	svc.InvalidateSchool(ctx, 1)

	assert.NotContains(t, repo.items, "billing:1:summary:all:2024")
	assert.Contains(t, repo.items, "billing:12:summary:all:2024")
}

func TestMetricsServiceBillingCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordInvoicesGenerated(3, 2)
	m.RecordPayment("direct", decimal.NewFromInt(250))
	m.RecordPayment("direct", decimal.NewFromInt(50))
	m.RecordOverpayment("installment")
	m.RecordVoid()
	m.RecordBackfill(BackfillSkipped)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.invoicesGenerated.WithLabelValues("created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.paymentsRecorded.WithLabelValues("direct")))
	assert.Equal(t, float64(300), testutil.ToFloat64(m.paymentAmount.WithLabelValues("direct")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.overpayments.WithLabelValues("installment")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.paymentsVoided))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.backfills.WithLabelValues(BackfillSkipped)))

	var nilMetrics *MetricsService
	nilMetrics.RecordVoid()
}
