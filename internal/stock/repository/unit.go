package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const unitColumns = `id, seq, batch_id, tenant_id, item_id, warehouse_id, expiry_date, received_at,
	unit_cost, parent_unit_id, status, quantity, quantity_available, drawn_quantity,
	consumer_kind, consumer_id, created_at, updated_at`

// unitRow mirrors stock_units. The consumer is stored as two nullable columns.
type unitRow struct {
	ID                string            `db:"id"`
	Seq               int64             `db:"seq"`
	BatchID           string            `db:"batch_id"`
	TenantID          string            `db:"tenant_id"`
	ItemID            string            `db:"item_id"`
	WarehouseID       *string           `db:"warehouse_id"`
	ExpiryDate        *time.Time        `db:"expiry_date"`
	ReceivedAt        time.Time         `db:"received_at"`
	UnitCost          decimal.Decimal   `db:"unit_cost"`
	ParentUnitID      *string           `db:"parent_unit_id"`
	Status            domain.UnitStatus `db:"status"`
	Quantity          decimal.Decimal   `db:"quantity"`
	QuantityAvailable decimal.Decimal   `db:"quantity_available"`
	DrawnQuantity     decimal.Decimal   `db:"drawn_quantity"`
	ConsumerKind      sql.NullString    `db:"consumer_kind"`
	ConsumerID        sql.NullString    `db:"consumer_id"`
	CreatedAt         time.Time         `db:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at"`
}

func (r *unitRow) toDomain() (domain.Unit, error) {
	u := domain.Unit{
		ID:                r.ID,
		Seq:               r.Seq,
		BatchID:           r.BatchID,
		TenantID:          r.TenantID,
		ItemID:            r.ItemID,
		WarehouseID:       r.WarehouseID,
		ExpiryDate:        r.ExpiryDate,
		ReceivedAt:        r.ReceivedAt,
		UnitCost:          r.UnitCost,
		ParentUnitID:      r.ParentUnitID,
		Status:            r.Status,
		Quantity:          r.Quantity,
		QuantityAvailable: r.QuantityAvailable,
		DrawnQuantity:     r.DrawnQuantity,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ConsumerKind.Valid {
		ref, err := domain.ParseConsumerRef(r.ConsumerKind.String, r.ConsumerID.String)
		if err != nil {
			return domain.Unit{}, fmt.Errorf("unit %s: %w", r.ID, err)
		}
		u.Consumer = ref
	}
	return u, nil
}

func consumerArgs(c domain.ConsumerRef) (sql.NullString, sql.NullString) {
	if c.IsZero() {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: string(c.Kind()), Valid: true}, sql.NullString{String: c.ID(), Valid: true}
}

// UnitRepository handles unit persistence
type UnitRepository struct {
	db *database.DB
}

// NewUnitRepository creates a new unit repository
func NewUnitRepository(db *database.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// Create inserts a unit and fills in its sequence number and timestamps.
func (r *UnitRepository) Create(ctx context.Context, u *domain.Unit) error {
	kind, id := consumerArgs(u.Consumer)
	query := `
		INSERT INTO stock_units (
			id, batch_id, tenant_id, item_id, warehouse_id, expiry_date, received_at,
			unit_cost, parent_unit_id, status, quantity, quantity_available, drawn_quantity,
			consumer_kind, consumer_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING seq, created_at, updated_at
	`

	return r.db.Conn(ctx).QueryRowxContext(ctx, query,
		u.ID, u.BatchID, u.TenantID, u.ItemID, u.WarehouseID, u.ExpiryDate, u.ReceivedAt,
		u.UnitCost, u.ParentUnitID, u.Status, u.Quantity, u.QuantityAvailable, u.DrawnQuantity,
		kind, id,
	).Scan(&u.Seq, &u.CreatedAt, &u.UpdatedAt)
}

// Update writes the mutable columns of u. The row must still be in
// prevStatus with prevAvailable on hand; otherwise someone else changed it
// and a ConcurrencyConflict is returned.
func (r *UnitRepository) Update(ctx context.Context, u *domain.Unit, prevStatus domain.UnitStatus, prevAvailable decimal.Decimal) error {
	kind, id := consumerArgs(u.Consumer)
	query := `
		UPDATE stock_units SET
			status = $3, quantity_available = $4, drawn_quantity = $5,
			consumer_kind = $6, consumer_id = $7
		WHERE tenant_id = $1 AND id = $2 AND status = $8 AND quantity_available = $9
		RETURNING updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		u.TenantID, u.ID, u.Status, u.QuantityAvailable, u.DrawnQuantity, kind, id,
		prevStatus, prevAvailable,
	).Scan(&u.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.ConcurrencyConflict(fmt.Sprintf("unit %s changed concurrently", u.ID))
	}
	return err
}

// ListAvailable reads AVAILABLE units of the items without locking.
func (r *UnitRepository) ListAvailable(ctx context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND item_id = ANY($2::uuid[]) AND status = 'AVAILABLE'
		AND ($3::uuid IS NULL OR warehouse_id = $3::uuid)
		ORDER BY item_id, seq
	`, tenantID, pq.Array(itemIDs), warehouseID)
}

// LockAvailable reads and row-locks the AVAILABLE units of the items. Rows
// are locked in (item, seq) order so concurrent callers queue rather than
// deadlock.
func (r *UnitRepository) LockAvailable(ctx context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND item_id = ANY($2::uuid[]) AND status = 'AVAILABLE'
		AND ($3::uuid IS NULL OR warehouse_id = $3::uuid)
		ORDER BY item_id, seq
		FOR UPDATE
	`, tenantID, pq.Array(itemIDs), warehouseID)
}

// LockAvailableByBatch row-locks the AVAILABLE units of one batch.
func (r *UnitRepository) LockAvailableByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND batch_id = $2 AND status = 'AVAILABLE'
		ORDER BY seq
		FOR UPDATE
	`, tenantID, batchID)
}

// LockByConsumer row-locks every unit held or consumed by consumer.
func (r *UnitRepository) LockByConsumer(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND consumer_kind = $2 AND consumer_id = $3
		ORDER BY seq
		FOR UPDATE
	`, tenantID, string(consumer.Kind()), consumer.ID())
}

// ListByConsumer reads the units linked to consumer.
func (r *UnitRepository) ListByConsumer(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND consumer_kind = $2 AND consumer_id = $3
		ORDER BY seq
	`, tenantID, string(consumer.Kind()), consumer.ID())
}

// ListByBatch reads every unit of a batch.
func (r *UnitRepository) ListByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Unit, error) {
	return r.list(ctx, `
		SELECT `+unitColumns+` FROM stock_units
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY seq
	`, tenantID, batchID)
}

func (r *UnitRepository) list(ctx context.Context, query string, args ...any) ([]domain.Unit, error) {
	var rows []unitRow
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	units := make([]domain.Unit, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// StockLevel sums what counts as on-hand for reorder decisions: AVAILABLE
// quantity plus RESERVED holds.
func (r *UnitRepository) StockLevel(ctx context.Context, tenantID, itemID string, warehouseID *string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	query := `
		SELECT SUM(CASE WHEN status = 'AVAILABLE' THEN quantity_available ELSE drawn_quantity END)
		FROM stock_units
		WHERE tenant_id = $1 AND item_id = $2 AND status IN ('AVAILABLE', 'RESERVED')
		AND ($3::uuid IS NULL OR warehouse_id = $3::uuid)
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &total, query, tenantID, itemID, warehouseID); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
