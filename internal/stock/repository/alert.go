package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const alertColumns = `id, tenant_id, type, severity, item_id, warehouse_id, batch_id, message,
	current_stock, threshold, expiry_date, days_until_expiry, status, dedupe_key,
	created_at, updated_at, dismissed_by, dismissed_at, resolved_at`

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Upsert records a monitor finding under its dedupe key. An open or dismissed
// alert for the same key is refreshed in place and keeps its status; inserted
// reports whether a new alert row was created.
func (r *AlertRepository) Upsert(ctx context.Context, a *domain.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.DedupeKey == "" {
		a.DedupeKey = domain.AlertDedupeKey(a.Type, a.ItemID, a.WarehouseID, a.BatchID)
	}

	query := `
		INSERT INTO stock_alerts (
			id, tenant_id, type, severity, item_id, warehouse_id, batch_id, message,
			current_stock, threshold, expiry_date, days_until_expiry, status, dedupe_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'open', $13)
		ON CONFLICT (tenant_id, dedupe_key) WHERE status IN ('open', 'dismissed')
		DO UPDATE SET
			severity = EXCLUDED.severity,
			message = EXCLUDED.message,
			current_stock = EXCLUDED.current_stock,
			threshold = EXCLUDED.threshold,
			days_until_expiry = EXCLUDED.days_until_expiry
		RETURNING id, status, created_at, updated_at, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.TenantID, a.Type, a.Severity, a.ItemID, a.WarehouseID, a.BatchID, a.Message,
		a.CurrentStock, a.Threshold, a.ExpiryDate, a.DaysUntilExpiry, a.DedupeKey,
	).Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt, &inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// ResolveExcept resolves the open and dismissed alerts of a tenant whose
// dedupe key is not in keep.
func (r *AlertRepository) ResolveExcept(ctx context.Context, tenantID string, keep []string, at time.Time) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	query := `
		UPDATE stock_alerts SET status = 'resolved', resolved_at = $3
		WHERE tenant_id = $1 AND status IN ('open', 'dismissed')
		AND dedupe_key <> ALL($2::text[])
	`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, tenantID, pq.Array(keep), at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AlertFilter narrows List.
type AlertFilter struct {
	Status *domain.AlertStatus
	Type   *domain.AlertType
	ItemID *string
	Limit  int
	Offset int
}

// List lists alerts newest first.
func (r *AlertRepository) List(ctx context.Context, tenantID string, f AlertFilter) ([]*domain.Alert, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	alerts := []*domain.Alert{}
	query := `
		SELECT ` + alertColumns + ` FROM stock_alerts
		WHERE tenant_id = $1
		AND ($2::text IS NULL OR status = $2::text)
		AND ($3::text IS NULL OR type = $3::text)
		AND ($4::uuid IS NULL OR item_id = $4::uuid)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &alerts, query,
		tenantID, f.Status, f.Type, f.ItemID, f.Limit, f.Offset,
	); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Alert, error) {
	var a domain.Alert
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE tenant_id = $1 AND id = $2`
	if err := r.db.Conn(ctx).GetContext(ctx, &a, query, tenantID, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &a, nil
}

// Dismiss marks an open alert as dismissed by userID.
func (r *AlertRepository) Dismiss(ctx context.Context, tenantID, id, userID string, at time.Time) (*domain.Alert, error) {
	var a domain.Alert
	query := `
		UPDATE stock_alerts SET status = 'dismissed', dismissed_by = $3, dismissed_at = $4
		WHERE tenant_id = $1 AND id = $2 AND status = 'open'
		RETURNING ` + alertColumns
	err := r.db.Conn(ctx).GetContext(ctx, &a, query, tenantID, id, userID, at)
	if stderrors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByID(ctx, tenantID, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.StateTransition("alert is " + string(existing.Status) + ", only open alerts can be dismissed")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
