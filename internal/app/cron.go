package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgcron "github.com/agentbrowse/core/internal/pkg/cron"
)

const staleSessionAge = 24 * time.Hour

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() {
	cronLogger := a.logger.Named("CronService")

	a.sched.Register(pkgcron.Job{
		Name:        "prune_trial_ledger",
		Description: "Drop trial usage entries older than the rolling window",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			evicted := a.ledger.Prune(time.Now())
			if evicted > 0 {
				cronLogger.Info(fmt.Sprintf("trial ledger pruned, %d users evicted", evicted))
			}
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "expire_subscriptions",
		Description: "Downgrade users whose paid period has ended",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := a.paymentSvc.ExpireSubscriptions(time.Now())
			if err != nil {
				cronLogger.Warn("subscription expiry failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info(fmt.Sprintf("downgraded %d expired subscriptions", n))
			}
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "expire_stale_sessions",
		Description: "Fail sessions stuck in pending or running for too long",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := a.sessionSvc.ExpireStale(time.Now().Add(-staleSessionAge))
			if err != nil {
				cronLogger.Warn("stale session sweep failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info(fmt.Sprintf("failed %d stale sessions", n))
			}
			return nil
		},
	})
}
