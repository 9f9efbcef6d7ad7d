package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
)

const (
	reconcileTimeout = 5 * time.Minute
	// gateways stop redelivering a webhook after about 3 days
	reconcileWindow = 72 * time.Hour
)

// newScheduler registers the periodic sweep that enrolls buyers of completed orders
// whose webhook processing stopped halfway.
func newScheduler(conf *core.Config, paymentSvc payment.Service, logger core.Logger) (*cron.Cron, error) {
	cronLogger := cron.VerbosePrintfLogger(log.New(os.Stdout, "CRON : ", log.LstdFlags|log.Lmicroseconds))
	if !conf.Debug {
		cronLogger = cron.PrintfLogger(log.New(os.Stdout, "CRON : ", log.LstdFlags|log.Lmicroseconds))
	}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := c.AddFunc(conf.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		created, err := paymentSvc.ReconcileCompletedOrders(ctx, time.Now().UTC().Add(-reconcileWindow))
		if err != nil {
			logger.Error("reconciliation sweep failed", err)
			return
		}
		if created > 0 {
			logger.Warn(fmt.Sprintf("reconciliation sweep created %d missing enrollments", created))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling reconciliation %q", conf.ReconcileSchedule)
	}
	return c, nil
}
