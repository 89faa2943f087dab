package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const batchColumns = `id, tenant_id, item_id, warehouse_id, supplier_id, quantity, unit_cost,
	expiry_date, received_at, receipt_type, reference, created_at, updated_at`

// BatchRepository handles batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch
func (r *BatchRepository) Create(ctx context.Context, b *domain.Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_batches (
			id, tenant_id, item_id, warehouse_id, supplier_id, quantity, unit_cost,
			expiry_date, received_at, receipt_type, reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return r.db.Conn(ctx).QueryRowxContext(ctx, query,
		b.ID, b.TenantID, b.ItemID, b.WarehouseID, b.SupplierID, b.Quantity, b.UnitCost,
		b.ExpiryDate, b.ReceivedAt, b.ReceiptType, b.Reference,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	return r.get(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

// GetForUpdate gets a batch and locks its row until the transaction ends.
func (r *BatchRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	return r.get(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id)
}

func (r *BatchRepository) get(ctx context.Context, query, tenantID, id string) (*domain.Batch, error) {
	var b domain.Batch
	if err := r.db.Conn(ctx).GetContext(ctx, &b, query, tenantID, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &b, nil
}

// ListByItem lists batches for an item, oldest receipt first. warehouseID
// narrows the list when set.
func (r *BatchRepository) ListByItem(ctx context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error) {
	batches := []*domain.Batch{}
	query := `
		SELECT ` + batchColumns + ` FROM stock_batches
		WHERE tenant_id = $1 AND item_id = $2
		AND ($3::uuid IS NULL OR warehouse_id = $3::uuid)
		ORDER BY received_at, id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &batches, query, tenantID, itemID, warehouseID); err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateQuantity sets the batch quantity.
func (r *BatchRepository) UpdateQuantity(ctx context.Context, tenantID, id string, qty decimal.Decimal) error {
	query := `UPDATE stock_batches SET quantity = $3 WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, tenantID, id, qty)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// Delete deletes a batch. Its units go with it.
func (r *BatchRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM stock_batches WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

// ExpiringBatch is a batch that still has stock on hand before its expiry.
type ExpiringBatch struct {
	domain.Batch
	Remaining decimal.Decimal `db:"remaining"`
}

// ListExpiring returns batches expiring in [from, until] that still hold
// AVAILABLE stock, soonest first.
func (r *BatchRepository) ListExpiring(ctx context.Context, tenantID string, from, until time.Time) ([]*ExpiringBatch, error) {
	batches := []*ExpiringBatch{}
	query := `
		SELECT b.id, b.tenant_id, b.item_id, b.warehouse_id, b.supplier_id, b.quantity, b.unit_cost,
			b.expiry_date, b.received_at, b.receipt_type, b.reference, b.created_at, b.updated_at,
			SUM(u.quantity_available) AS remaining
		FROM stock_batches b
		JOIN stock_units u ON u.batch_id = b.id AND u.status = 'AVAILABLE'
		WHERE b.tenant_id = $1
		AND b.expiry_date IS NOT NULL
		AND b.expiry_date >= $2::date AND b.expiry_date <= $3::date
		GROUP BY b.id
		ORDER BY b.expiry_date, b.id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &batches, query, tenantID, from, until); err != nil {
		return nil, err
	}
	return batches, nil
}
