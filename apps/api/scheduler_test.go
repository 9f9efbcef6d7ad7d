package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/tests"
)

type sweepCounter struct {
	payment.Service
	calls int
	since time.Time
}

func (s *sweepCounter) ReconcileCompletedOrders(_ context.Context, since time.Time) (int, error) {
	s.calls++
	s.since = since
	return 1, nil
}

func Test_newScheduler(t *testing.T) {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)

	t.Run("invalid schedule", func(t *testing.T) {
		conf := *conf
		conf.ReconcileSchedule = "every now and then"
		_, err := newScheduler(&conf, new(sweepCounter), logger)
		assert.Error(t, err)
	})

	t.Run("sweep registered", func(t *testing.T) {
		svc := new(sweepCounter)
		c, err := newScheduler(conf, svc, logger)
		require.NoError(t, err)

		entries := c.Entries()
		require.Len(t, entries, 1)
		entries[0].Job.Run()
		assert.Equal(t, 1, svc.calls)
		assert.WithinDuration(t, time.Now().Add(-reconcileWindow), svc.since, time.Minute)
	})
}
