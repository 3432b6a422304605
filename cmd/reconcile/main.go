// Command reconcile backfills down payments that were never recorded for payment plans.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/app"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/migrations"
	"github.com/noah-isme/sma-billing-api/pkg/cache"
	"github.com/noah-isme/sma-billing-api/pkg/config"
	"github.com/noah-isme/sma-billing-api/pkg/database"
	"github.com/noah-isme/sma-billing-api/pkg/jobs"
	"github.com/noah-isme/sma-billing-api/pkg/logger"
)

const operator = "reconcile"

func main() {
	schoolID := flag.Int64("school", 0, "limit the run to one school (0 = all schools)")
	migrate := flag.Bool("migrate", false, "apply pending migrations first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if *migrate {
		if err := database.Migrate(db, migrations.FS); err != nil {
			logr.Fatal("migration failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cached reports will expire on their own", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	c := app.NewContainer(cfg, db, rdb, logr)
	plans, err := c.Plans.PendingDownPayments(ctx, *schoolID)
	if err != nil {
		logr.Fatal("failed to list pending plans", zap.Error(err))
	}

	var created, skipped, failed int64
	var touchedMu sync.Mutex
	touched := make(map[int64]struct{})
	queue := jobs.NewQueue("down-payment-backfill", func(ctx context.Context, job jobs.Job) error {
		plan := job.Payload.(models.PaymentPlan)
		ok, err := c.Plans.BackfillPlan(ctx, plan, operator)
		if err != nil {
			return err
		}
		if ok {
			atomic.AddInt64(&created, 1)
			touchedMu.Lock()
			touched[plan.SchoolID] = struct{}{}
			touchedMu.Unlock()
		} else {
			atomic.AddInt64(&skipped, 1)
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Reconcile.Workers,
		MaxRetries: retries(cfg.Reconcile.Retries),
		RetryDelay: cfg.Reconcile.RetryDelay,
		Logger:     logr,
		OnFailure: func(job jobs.Job, err error) {
			atomic.AddInt64(&failed, 1)
		},
	})
	queue.Start(ctx)

	for _, plan := range plans {
		if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: "backfill", Payload: plan}); err != nil {
			atomic.AddInt64(&failed, 1)
			logr.Warn("failed to enqueue plan", zap.Int64("plan_id", plan.ID), zap.Error(err))
		}
	}
	queue.Wait()
	queue.Stop()

	// Committed backfills must be visible even when the run was interrupted.
	for school := range touched {
		c.Cache.InvalidateSchool(context.Background(), school)
	}

	fmt.Printf("plans=%d created=%d skipped=%d failed=%d\n", len(plans), created, skipped, failed)
	if ctx.Err() != nil {
		logr.Warn("reconciliation interrupted; rerun to finish the remaining plans")
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// The queue treats zero as "use the default"; an explicit zero here means no retries.
func retries(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
