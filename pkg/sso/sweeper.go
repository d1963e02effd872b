package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/ssobridge/pkg/observability"
)

// DefaultSweepSchedule runs the expiry sweep every ten minutes
const DefaultSweepSchedule = "*/10 * * * *"

// sweepTimeout bounds one scheduled sweep
const sweepTimeout = 30 * time.Second

// Sweeper deletes expired tokens on a cron schedule, in addition to the
// sweep the Issuer runs before every issue.
type Sweeper struct {
	store    TokenStore
	schedule string
	logger   *observability.Logger
	metrics  *observability.Metrics
	cron     *cron.Cron
	now      func() time.Time
}

// NewSweeper creates a sweeper. An empty schedule means DefaultSweepSchedule.
func NewSweeper(store TokenStore, schedule string, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.WithField("component", "sso_sweeper")

	cl := cronLogger{logger: logger}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		logger:   logger,
		metrics:  metrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce deletes expired tokens now and returns how many were removed
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveSwept(n)
	return n, nil
}

// Start schedules the sweep and starts the cron scheduler
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		n, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.WithError(err).Error("scheduled sso token sweep failed")
			return
		}
		s.logger.WithField("deleted", n).Info("scheduled sso token sweep completed")
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("sso token sweeper started")
	return nil
}

// Stop stops scheduling and waits for a running sweep until ctx is done
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the observability logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
