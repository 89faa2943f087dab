package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
)

// ledger bundles the stores every mutating operation touches and applies
// units changes together with their movement rows.
type ledger struct {
	tx          Transactor
	batches     BatchStore
	units       UnitStore
	movements   MovementStore
	lockTimeout time.Duration
}

// inTx runs fn in a tenant transaction with the lock timeout applied and
// maps database failures to AppErrors.
func (l *ledger) inTx(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	err := l.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		if err := l.tx.SetLockTimeout(ctx, l.lockTimeout); err != nil {
			return err
		}
		return fn(ctx)
	})
	return database.MapError(err)
}

func (l *ledger) record(ctx context.Context, u *domain.Unit, action domain.MovementAction, from *domain.UnitStatus, qty decimal.Decimal, consumer domain.ConsumerRef, reason *string) error {
	return l.movements.Create(ctx, &domain.Movement{
		TenantID:   u.TenantID,
		UnitID:     u.ID,
		BatchID:    u.BatchID,
		ItemID:     u.ItemID,
		Action:     action,
		FromStatus: from,
		ToStatus:   u.Status,
		Quantity:   qty,
		Consumer:   consumer,
		Reason:     reason,
	})
}

// createBatch inserts b with a single AVAILABLE unit holding all of it.
func (l *ledger) createBatch(ctx context.Context, b *domain.Batch, reason *string) error {
	if err := l.batches.Create(ctx, b); err != nil {
		return err
	}
	u := domain.NewUnit(b, b.Quantity)
	if err := l.units.Create(ctx, &u); err != nil {
		return err
	}
	return l.record(ctx, &u, domain.MovementRegister, nil, b.Quantity, domain.ConsumerRef{}, reason)
}

// draw takes amount from the AVAILABLE unit u and persists the result. The
// returned unit is the one now holding amount for consumer: u itself on a
// full draw, a new child on a partial one.
func (l *ledger) draw(ctx context.Context, u *domain.Unit, amount decimal.Decimal, to domain.UnitStatus, consumer domain.ConsumerRef, action domain.MovementAction, reason *string) (domain.Unit, error) {
	prevStatus, prevAvailable := u.Status, u.QuantityAvailable
	drawn, split, err := u.Draw(amount, to, consumer)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := l.units.Update(ctx, u, prevStatus, prevAvailable); err != nil {
		return domain.Unit{}, err
	}
	if split {
		if err := l.units.Create(ctx, &drawn); err != nil {
			return domain.Unit{}, err
		}
	} else {
		drawn = *u
	}
	if err := l.record(ctx, &drawn, action, &prevStatus, amount, consumer, reason); err != nil {
		return domain.Unit{}, err
	}
	return drawn, nil
}

// transition moves a held unit to another non-AVAILABLE status.
func (l *ledger) transition(ctx context.Context, u *domain.Unit, to domain.UnitStatus, consumer domain.ConsumerRef, action domain.MovementAction, reason *string) error {
	prevStatus := u.Status
	if err := u.Transition(to, consumer); err != nil {
		return err
	}
	if err := l.units.Update(ctx, u, prevStatus, decimal.Zero); err != nil {
		return err
	}
	return l.record(ctx, u, action, &prevStatus, u.DrawnQuantity, consumer, reason)
}

// release returns u to AVAILABLE. reversal admits SOLD and ISSUED units.
func (l *ledger) release(ctx context.Context, u *domain.Unit, reversal bool, action domain.MovementAction, reason *string) error {
	prevStatus, consumer, amount := u.Status, u.Consumer, u.DrawnQuantity
	if err := u.Release(reversal); err != nil {
		return err
	}
	if err := l.units.Update(ctx, u, prevStatus, decimal.Zero); err != nil {
		return err
	}
	return l.record(ctx, u, action, &prevStatus, amount, consumer, reason)
}

// shrink removes amount from the AVAILABLE unit u without a consumer.
func (l *ledger) shrink(ctx context.Context, u *domain.Unit, amount decimal.Decimal, adjustment domain.ConsumerRef, action domain.MovementAction, reason *string) error {
	prevStatus, prevAvailable := u.Status, u.QuantityAvailable
	if err := u.Shrink(amount, adjustment); err != nil {
		return err
	}
	if err := l.units.Update(ctx, u, prevStatus, prevAvailable); err != nil {
		return err
	}
	return l.record(ctx, u, action, &prevStatus, amount, adjustment, reason)
}

func drawOf(u *domain.Unit, qty decimal.Decimal) domain.UnitDraw {
	return domain.UnitDraw{
		UnitID:     u.ID,
		BatchID:    u.BatchID,
		ItemID:     u.ItemID,
		Quantity:   qty,
		UnitCost:   u.UnitCost,
		ExpiryDate: u.ExpiryDate,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
