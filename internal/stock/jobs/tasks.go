// Package jobs runs monitor scans on the asynq queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

const (
	// QueueDefault is the queue stock tasks run on unless configured otherwise.
	QueueDefault = "stock"
	// TaskMonitorScan scans one tenant.
	TaskMonitorScan = "stock:monitor_scan"
	// TaskMonitorSweep fans a scan out to every monitored tenant.
	TaskMonitorSweep = "stock:monitor_sweep"
)

// ScanPayload identifies the tenant to scan.
type ScanPayload struct {
	TenantID string `json:"tenant_id"`
}

// NewScanTask constructs a monitor scan task.
func NewScanTask(tenantID string) (*asynq.Task, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("scan task: tenant id required")
	}
	data, err := json.Marshal(ScanPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMonitorScan, data), nil
}

// NewSweepTask constructs the periodic sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskMonitorSweep, nil)
}

// ScanJob handles TaskMonitorScan.
type ScanJob struct {
	scanner service.Scanner
	logger  *logger.Logger
}

// NewScanJob creates the scan handler.
func NewScanJob(scanner service.Scanner, log *logger.Logger) *ScanJob {
	return &ScanJob{scanner: scanner, logger: log.WithComponent("jobs")}
}

// Handle scans the tenant named in the payload. Malformed payloads are not
// retried.
func (j *ScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.TenantID == "" {
		j.logger.Warn().Str("task", t.Type()).Msg("dropping scan task with malformed payload")
		return fmt.Errorf("scan task: bad payload: %w", asynq.SkipRetry)
	}

	start := time.Now()
	report, err := j.scanner.Scan(tenant.WithTenantID(ctx, payload.TenantID), payload.TenantID)
	if err != nil {
		return fmt.Errorf("scan tenant %s: %w", payload.TenantID, err)
	}

	j.logger.Info().
		Str("tenant_id", payload.TenantID).
		Int("findings", report.Findings).
		Int("new_alerts", report.NewAlerts).
		Int64("resolved", report.Resolved).
		Int("purchase_orders", report.PurchaseOrders).
		Dur("duration", time.Since(start)).
		Msg("monitor scan task completed")
	return nil
}

// ScanEnqueuer puts a scan on the queue. *Client implements it.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, tenantID string) error
}

// SweepJob handles TaskMonitorSweep.
type SweepJob struct {
	tenants  service.TenantLister
	enqueuer ScanEnqueuer
	logger   *logger.Logger
}

// NewSweepJob creates the sweep handler.
func NewSweepJob(tenants service.TenantLister, enqueuer ScanEnqueuer, log *logger.Logger) *SweepJob {
	return &SweepJob{tenants: tenants, enqueuer: enqueuer, logger: log.WithComponent("jobs")}
}

// Handle enqueues one scan per monitored tenant. A tenant that cannot be
// enqueued is logged and skipped; the sweep fails only if none could be.
func (j *SweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tenantIDs, err := j.tenants.ListMonitoredTenants(ctx)
	if err != nil {
		return fmt.Errorf("list monitored tenants: %w", err)
	}

	var enqueued int
	var lastErr error
	for _, id := range tenantIDs {
		if err := j.enqueuer.EnqueueScan(ctx, id); err != nil {
			j.logger.Error().Err(err).Str("tenant_id", id).Msg("failed to enqueue monitor scan")
			lastErr = err
			continue
		}
		enqueued++
	}

	j.logger.Info().Int("tenant_count", len(tenantIDs)).Int("enqueued", enqueued).Msg("monitor sweep completed")
	if enqueued == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}
