package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// Scanner scans one tenant.
type Scanner interface {
	Scan(ctx context.Context, tenantID string) (*ScanReport, error)
}

// TenantLister lists the tenants that have something to monitor.
type TenantLister interface {
	ListMonitoredTenants(ctx context.Context) ([]string, error)
}

// Scheduler runs monitor scans for every tenant on an interval.
type Scheduler struct {
	scanner     Scanner
	tenants     TenantLister
	interval    time.Duration
	concurrency int
	logger      *logger.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewScheduler creates a new scheduler scanning at most concurrency tenants
// at a time.
func NewScheduler(scanner Scanner, tenants TenantLister, interval time.Duration, concurrency int, log *logger.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		scanner:     scanner,
		tenants:     tenants,
		interval:    interval,
		concurrency: concurrency,
		logger:      log.WithComponent("scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. The first cycle runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info().Dur("interval", s.interval).Int("concurrency", s.concurrency).Msg("stock scheduler started")

		s.RunCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("stock scheduler stopped")
				return
			case <-ticker.C:
				s.RunCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler and waits for the running cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// RunCycle scans every monitored tenant and returns how many scans
// succeeded. A failing tenant does not stop the others.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	start := time.Now()

	tenantIDs, err := s.tenants.ListMonitoredTenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list monitored tenants")
		return 0
	}

	var succeeded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, tenantID := range tenantIDs {
		tenantID := tenantID
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, err := s.scanner.Scan(tenant.WithTenantID(gctx, tenantID), tenantID); err != nil {
				s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("stock scan failed for tenant")
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("tenant_count", len(tenantIDs)).
		Int64("succeeded", succeeded.Load()).
		Msg("stock scan cycle completed")
	return int(succeeded.Load())
}
