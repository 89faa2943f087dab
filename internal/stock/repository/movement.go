package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
)

type movementRow struct {
	ID           string                `db:"id"`
	TenantID     string                `db:"tenant_id"`
	UnitID       string                `db:"unit_id"`
	BatchID      string                `db:"batch_id"`
	ItemID       string                `db:"item_id"`
	Action       domain.MovementAction `db:"action"`
	FromStatus   *domain.UnitStatus    `db:"from_status"`
	ToStatus     domain.UnitStatus     `db:"to_status"`
	Quantity     decimal.Decimal       `db:"quantity"`
	ConsumerKind sql.NullString        `db:"consumer_kind"`
	ConsumerID   sql.NullString        `db:"consumer_id"`
	Reason       *string               `db:"reason"`
	CreatedAt    time.Time             `db:"created_at"`
}

// MovementRepository appends to and reads the unit audit trail.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create appends a movement.
func (r *MovementRepository) Create(ctx context.Context, m *domain.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	kind, id := consumerArgs(m.Consumer)

	query := `
		INSERT INTO stock_movements (
			id, tenant_id, unit_id, batch_id, item_id, action, from_status, to_status,
			quantity, consumer_kind, consumer_id, reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`

	return r.db.Conn(ctx).QueryRowxContext(ctx, query,
		m.ID, m.TenantID, m.UnitID, m.BatchID, m.ItemID, m.Action, m.FromStatus, m.ToStatus,
		m.Quantity, kind, id, m.Reason,
	).Scan(&m.CreatedAt)
}

// ListByBatch returns the movements of a batch in order.
func (r *MovementRepository) ListByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Movement, error) {
	var rows []movementRow
	query := `
		SELECT id, tenant_id, unit_id, batch_id, item_id, action, from_status, to_status,
			quantity, consumer_kind, consumer_id, reason, created_at
		FROM stock_movements
		WHERE tenant_id = $1 AND batch_id = $2
		ORDER BY created_at, id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, tenantID, batchID); err != nil {
		return nil, err
	}

	movements := make([]domain.Movement, 0, len(rows))
	for _, row := range rows {
		m := domain.Movement{
			ID:         row.ID,
			TenantID:   row.TenantID,
			UnitID:     row.UnitID,
			BatchID:    row.BatchID,
			ItemID:     row.ItemID,
			Action:     row.Action,
			FromStatus: row.FromStatus,
			ToStatus:   row.ToStatus,
			Quantity:   row.Quantity,
			Reason:     row.Reason,
			CreatedAt:  row.CreatedAt,
		}
		if row.ConsumerKind.Valid {
			ref, err := domain.ParseConsumerRef(row.ConsumerKind.String, row.ConsumerID.String)
			if err != nil {
				return nil, err
			}
			m.Consumer = ref
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// HasActivity reports whether anything other than registration and
// quantity adjustments ever touched the batch.
func (r *MovementRepository) HasActivity(ctx context.Context, tenantID, batchID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements
			WHERE tenant_id = $1 AND batch_id = $2
			AND action NOT IN ('REGISTER', 'ADJUST_UP', 'ADJUST_DOWN')
		)
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, tenantID, batchID); err != nil {
		return false, err
	}
	return exists, nil
}
