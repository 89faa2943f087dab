package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/selection"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// Registry records batch receipts and quantity corrections.
type Registry struct {
	ledger
	publisher EventPublisher
	now       Clock
	logger    *logger.Logger
}

// NewRegistry creates a new batch registry. publisher may be nil.
func NewRegistry(
	tx Transactor,
	batches BatchStore,
	units UnitStore,
	movements MovementStore,
	publisher EventPublisher,
	lockTimeout time.Duration,
	log *logger.Logger,
) *Registry {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Registry{
		ledger: ledger{
			tx:          tx,
			batches:     batches,
			units:       units,
			movements:   movements,
			lockTimeout: lockTimeout,
		},
		publisher: publisher,
		now:       utcNow,
		logger:    log.WithComponent("registry"),
	}
}

// RegisterBatchInput describes a stock receipt.
type RegisterBatchInput struct {
	TenantID    string             `json:"tenant_id" validate:"required,uuid"`
	ItemID      string             `json:"item_id" validate:"required,uuid"`
	WarehouseID *string            `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	SupplierID  *string            `json:"supplier_id,omitempty" validate:"omitempty,uuid"`
	Quantity    decimal.Decimal    `json:"quantity" validate:"gt=0"`
	UnitCost    decimal.Decimal    `json:"unit_cost" validate:"gte=0"`
	ExpiryDate  *time.Time         `json:"expiry_date,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"`
	ReceiptType domain.ReceiptType `json:"receipt_type" validate:"required,oneof=PURCHASE_ORDER DIRECT_ADDITION DELIVERY REFUND TRANSFER ADJUSTMENT"`
	Reference   *string            `json:"reference,omitempty" validate:"omitempty,max=255"`
}

// RegisterBatch stores a new batch together with one AVAILABLE unit holding
// its whole quantity.
func (r *Registry) RegisterBatch(ctx context.Context, in RegisterBatchInput) (*domain.Batch, error) {
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}

	b := &domain.Batch{
		TenantID:    in.TenantID,
		ItemID:      in.ItemID,
		WarehouseID: in.WarehouseID,
		SupplierID:  in.SupplierID,
		Quantity:    in.Quantity,
		UnitCost:    in.UnitCost,
		ExpiryDate:  in.ExpiryDate,
		ReceivedAt:  in.ReceivedAt,
		ReceiptType: in.ReceiptType,
		Reference:   in.Reference,
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = r.now()
	}

	err := r.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		return r.createBatch(ctx, b, nil)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("tenant_id", b.TenantID).
		Str("batch_id", b.ID).
		Str("item_id", b.ItemID).
		Str("quantity", b.Quantity.String()).
		Msg("batch registered")
	r.publisher.BatchRegistered(ctx, b)
	return b, nil
}

// AdjustBatchInput corrects the quantity of a batch.
type AdjustBatchInput struct {
	TenantID    string          `json:"tenant_id" validate:"required,uuid"`
	BatchID     string          `json:"batch_id" validate:"required,uuid"`
	NewQuantity decimal.Decimal `json:"new_quantity" validate:"gte=0"`
	Reason      string          `json:"reason" validate:"required,max=500"`
}

// AdjustBatchQuantity sets a batch to NewQuantity. An increase adds a fresh
// AVAILABLE unit for the difference; a decrease drains AVAILABLE units newest
// first and fails with InsufficientStock when too little is unallocated.
func (r *Registry) AdjustBatchQuantity(ctx context.Context, in AdjustBatchInput) (*domain.Batch, error) {
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}

	var (
		batch    *domain.Batch
		previous decimal.Decimal
	)
	err := r.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		b, err := r.batches.GetForUpdate(ctx, in.TenantID, in.BatchID)
		if err != nil {
			return err
		}
		previous = b.Quantity
		batch = b

		delta := in.NewQuantity.Sub(b.Quantity)
		reason := strPtr(in.Reason)
		switch {
		case delta.IsZero():
			return nil
		case delta.IsPositive():
			u := domain.NewUnit(b, delta)
			if err := r.units.Create(ctx, &u); err != nil {
				return err
			}
			if err := r.record(ctx, &u, domain.MovementAdjustUp, nil, delta, domain.ConsumerRef{}, reason); err != nil {
				return err
			}
		default:
			need := delta.Neg()
			units, err := r.units.LockAvailableByBatch(ctx, in.TenantID, b.ID)
			if err != nil {
				return err
			}
			if available := selection.Total(units); available.LessThan(need) {
				return domain.NewInsufficientStock(b.ItemID, available, need)
			}
			ref := domain.AdjustmentRef(b.ID)
			for _, u := range selection.Order(selection.Available(units), domain.LIFO) {
				u := u
				if !need.IsPositive() {
					break
				}
				take := decimal.Min(need, u.QuantityAvailable)
				if err := r.shrink(ctx, &u, take, ref, domain.MovementAdjustDown, reason); err != nil {
					return err
				}
				need = need.Sub(take)
			}
		}

		if err := r.batches.UpdateQuantity(ctx, in.TenantID, b.ID, in.NewQuantity); err != nil {
			return err
		}
		b.Quantity = in.NewQuantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !previous.Equal(batch.Quantity) {
		r.logger.Info().
			Str("tenant_id", in.TenantID).
			Str("batch_id", batch.ID).
			Str("from", previous.String()).
			Str("to", batch.Quantity.String()).
			Msg("batch quantity adjusted")
		r.publisher.BatchAdjusted(ctx, batch, previous, in.Reason)
	}
	return batch, nil
}

// BatchDetail is a batch with its current unit breakdown.
type BatchDetail struct {
	*domain.Batch
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Consumed  decimal.Decimal `json:"consumed"`
}

// GetBatch returns a batch and how much of it is available, held and gone.
func (r *Registry) GetBatch(ctx context.Context, tenantID, batchID string) (*BatchDetail, error) {
	var detail *BatchDetail
	err := r.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		b, err := r.batches.GetByID(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		units, err := r.units.ListByBatch(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		detail = summarize(b, units)
		return nil
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return detail, nil
}

func summarize(b *domain.Batch, units []domain.Unit) *BatchDetail {
	d := &BatchDetail{Batch: b, Available: decimal.Zero, Held: decimal.Zero, Consumed: decimal.Zero}
	for i := range units {
		u := &units[i]
		switch {
		case u.Status == domain.StatusAvailable:
			d.Available = d.Available.Add(u.QuantityAvailable)
		case u.Status.IsHeld():
			d.Held = d.Held.Add(u.DrawnQuantity)
		default:
			d.Consumed = d.Consumed.Add(u.DrawnQuantity)
		}
	}
	return d
}

// ListBatches lists the batches of an item, optionally in one warehouse.
func (r *Registry) ListBatches(ctx context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error) {
	var batches []*domain.Batch
	err := r.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		batches, err = r.batches.ListByItem(ctx, tenantID, itemID, warehouseID)
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}

// History returns the movement trail of a batch.
func (r *Registry) History(ctx context.Context, tenantID, batchID string) ([]domain.Movement, error) {
	var movements []domain.Movement
	err := r.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if _, err := r.batches.GetByID(ctx, tenantID, batchID); err != nil {
			return err
		}
		var err error
		movements, err = r.movements.ListByBatch(ctx, tenantID, batchID)
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return movements, nil
}

// DeleteBatch removes a batch that was never allocated from.
func (r *Registry) DeleteBatch(ctx context.Context, tenantID, batchID string) error {
	return r.inTx(ctx, tenantID, func(ctx context.Context) error {
		if _, err := r.batches.GetForUpdate(ctx, tenantID, batchID); err != nil {
			return err
		}
		used, err := r.movements.HasActivity(ctx, tenantID, batchID)
		if err != nil {
			return err
		}
		if used {
			return errors.StateTransition("batch has allocation history and cannot be deleted")
		}
		return r.batches.Delete(ctx, tenantID, batchID)
	})
}
