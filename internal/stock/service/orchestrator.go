package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/selection"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// Orchestrator allocates, releases and consumes ledger units for consumers.
// Every mutating call runs in one tenant transaction that locks the candidate
// rows before selecting from them.
type Orchestrator struct {
	ledger
	defaultStrategy domain.Strategy
	publisher       EventPublisher
	now             Clock
	logger          *logger.Logger
}

// NewOrchestrator creates a new orchestrator. publisher may be nil.
func NewOrchestrator(
	tx Transactor,
	batches BatchStore,
	units UnitStore,
	movements MovementStore,
	publisher EventPublisher,
	defaultStrategy domain.Strategy,
	lockTimeout time.Duration,
	log *logger.Logger,
) *Orchestrator {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if defaultStrategy == "" {
		defaultStrategy = domain.FIFO
	}
	return &Orchestrator{
		ledger: ledger{
			tx:          tx,
			batches:     batches,
			units:       units,
			movements:   movements,
			lockTimeout: lockTimeout,
		},
		defaultStrategy: defaultStrategy,
		publisher:       publisher,
		now:             utcNow,
		logger:          log.WithComponent("orchestrator"),
	}
}

// OrderLine is one item of an order.
type OrderLine struct {
	ItemID      string          `json:"item_id" validate:"required,uuid"`
	WarehouseID *string         `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// OrderInput allocates every line of one consumer in a single transaction.
type OrderInput struct {
	TenantID string             `json:"tenant_id" validate:"required,uuid"`
	Consumer domain.ConsumerRef `json:"-" validate:"-"`
	Mode     domain.Mode        `json:"mode" validate:"required,oneof=RESERVE CONSUME"`
	Strategy string             `json:"strategy,omitempty"`
	Lines    []OrderLine        `json:"lines" validate:"required,min=1,dive"`
}

// AllocateInput allocates a single item.
type AllocateInput struct {
	TenantID    string
	ItemID      string
	WarehouseID *string
	Quantity    decimal.Decimal
	Consumer    domain.ConsumerRef
	Strategy    string
	Mode        domain.Mode
}

// LineAllocation is what one order line drew.
type LineAllocation struct {
	ItemID      string            `json:"item_id"`
	WarehouseID *string           `json:"warehouse_id,omitempty"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Draws       []domain.UnitDraw `json:"draws"`
}

// Allocation is the outcome of an allocating call.
type Allocation struct {
	ConsumerKind domain.ConsumerKind `json:"consumer_kind"`
	ConsumerID   string              `json:"consumer_id"`
	Status       domain.UnitStatus   `json:"status"`
	Strategy     domain.Strategy     `json:"strategy"`
	Lines        []LineAllocation    `json:"lines"`
}

// Draws flattens the draws of all lines.
func (a *Allocation) Draws() []domain.UnitDraw {
	draws := make([]domain.UnitDraw, 0)
	for _, l := range a.Lines {
		draws = append(draws, l.Draws...)
	}
	return draws
}

func (o *Orchestrator) validateOrder(in OrderInput) (domain.Strategy, error) {
	if err := httputil.Validate(in); err != nil {
		return "", err
	}
	if in.Consumer.IsZero() {
		return "", errors.Validation(map[string]string{"consumer": "this field is required"})
	}
	if in.Mode == domain.ModeConsume {
		if err := directConsume(in.Consumer); err != nil {
			return "", err
		}
	}
	strategy, err := domain.ParseStrategy(in.Strategy, o.defaultStrategy)
	if err != nil {
		return "", errors.Validation(map[string]string{"strategy": "must be one of FIFO LIFO"})
	}
	return strategy, nil
}

// directConsume rejects consuming a transfer in one step. Transferred stock
// leaves through PickTransfer and ReceiveTransfer, which registers the
// destination batch.
func directConsume(consumer domain.ConsumerRef) error {
	if consumer.Kind() == domain.ConsumerTransfer {
		return errors.StateTransition(fmt.Sprintf("%s cannot be consumed directly: reserve, pick and receive it", consumer))
	}
	return nil
}

// AllocateAndConsume draws Quantity of one item for Consumer and returns the
// (unit, amount) pairs. RESERVE holds the units; CONSUME moves them straight
// to the consumer's terminal status. Nothing changes on shortfall.
func (o *Orchestrator) AllocateAndConsume(ctx context.Context, in AllocateInput) ([]domain.UnitDraw, error) {
	alloc, err := o.AllocateOrder(ctx, OrderInput{
		TenantID: in.TenantID,
		Consumer: in.Consumer,
		Mode:     in.Mode,
		Strategy: in.Strategy,
		Lines: []OrderLine{{
			ItemID:      in.ItemID,
			WarehouseID: in.WarehouseID,
			Quantity:    in.Quantity,
		}},
	})
	if err != nil {
		return nil, err
	}
	return alloc.Draws(), nil
}

// AllocateOrder allocates all lines or none of them.
func (o *Orchestrator) AllocateOrder(ctx context.Context, in OrderInput) (*Allocation, error) {
	strategy, err := o.validateOrder(in)
	if err != nil {
		return nil, err
	}

	var alloc *Allocation
	err = o.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		alloc, err = o.allocateTx(ctx, in, strategy)
		return err
	})
	if err != nil {
		o.logFailure(err, in.TenantID, in.Consumer, "allocation failed")
		return nil, err
	}

	o.logger.Debug().
		Str("tenant_id", in.TenantID).
		Str("consumer", in.Consumer.String()).
		Str("mode", string(in.Mode)).
		Int("draws", len(alloc.Draws())).
		Msg("stock allocated")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: in.TenantID,
		Consumer: in.Consumer,
		Action:   actionFor(in.Mode),
		Status:   alloc.Status,
		Draws:    alloc.Draws(),
	})
	return alloc, nil
}

func actionFor(m domain.Mode) domain.MovementAction {
	if m == domain.ModeReserve {
		return domain.MovementReserve
	}
	return domain.MovementConsume
}

func (o *Orchestrator) allocateTx(ctx context.Context, in OrderInput, strategy domain.Strategy) (*Allocation, error) {
	target := in.Mode.TargetStatus(in.Consumer)
	alloc := &Allocation{
		ConsumerKind: in.Consumer.Kind(),
		ConsumerID:   in.Consumer.ID(),
		Status:       target,
		Strategy:     strategy,
		Lines:        make([]LineAllocation, 0, len(in.Lines)),
	}

	// Lock in a stable order so concurrent orders over the same items queue
	// instead of deadlocking.
	lines := make([]OrderLine, len(in.Lines))
	copy(lines, in.Lines)
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].ItemID != lines[j].ItemID {
			return lines[i].ItemID < lines[j].ItemID
		}
		return derefOr(lines[i].WarehouseID, "") < derefOr(lines[j].WarehouseID, "")
	})

	for _, line := range lines {
		candidates, err := o.units.LockAvailable(ctx, in.TenantID, []string{line.ItemID}, line.WarehouseID)
		if err != nil {
			return nil, err
		}
		result := selection.Select(candidates, line.Quantity, strategy)
		if !result.Fulfilled() {
			return nil, domain.NewInsufficientStock(line.ItemID, result.Drawn, line.Quantity)
		}

		byID := make(map[string]*domain.Unit, len(candidates))
		for i := range candidates {
			byID[candidates[i].ID] = &candidates[i]
		}

		la := LineAllocation{
			ItemID:      line.ItemID,
			WarehouseID: line.WarehouseID,
			Quantity:    line.Quantity,
			Draws:       make([]domain.UnitDraw, 0, len(result.Draws)),
		}
		for _, d := range result.Draws {
			u, ok := byID[d.UnitID]
			if !ok {
				return nil, fmt.Errorf("selected unit %s is not a locked candidate", d.UnitID)
			}
			drawn, err := o.draw(ctx, u, d.Quantity, target, in.Consumer, actionFor(in.Mode), nil)
			if err != nil {
				return nil, err
			}
			la.Draws = append(la.Draws, drawOf(&drawn, d.Quantity))
		}
		alloc.Lines = append(alloc.Lines, la)
	}
	return alloc, nil
}

// SelectInput is a read-only availability query.
type SelectInput struct {
	TenantID    string          `json:"tenant_id" validate:"required,uuid"`
	ItemIDs     []string        `json:"item_ids" validate:"required,min=1,dive,uuid"`
	WarehouseID *string         `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	Strategy    string          `json:"strategy,omitempty"`
}

// SelectUnits reports which units an allocation would draw right now without
// locking or changing anything. Any of ItemIDs may supply the quantity.
func (o *Orchestrator) SelectUnits(ctx context.Context, in SelectInput) (*domain.AllocationResult, error) {
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	strategy, err := domain.ParseStrategy(in.Strategy, o.defaultStrategy)
	if err != nil {
		return nil, errors.Validation(map[string]string{"strategy": "must be one of FIFO LIFO"})
	}

	var result domain.AllocationResult
	err = o.tx.WithTenantRLS(ctx, in.TenantID, func(ctx context.Context) error {
		candidates, err := o.units.ListAvailable(ctx, in.TenantID, in.ItemIDs, in.WarehouseID)
		if err != nil {
			return err
		}
		result = selection.Select(candidates, in.Quantity, strategy)
		return nil
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return &result, nil
}

// lockHeld locks every unit of consumer and checks each against allowed.
func (o *Orchestrator) lockHeld(ctx context.Context, tenantID string, consumer domain.ConsumerRef, allowed func(domain.UnitStatus) bool, verb string) ([]domain.Unit, error) {
	if consumer.IsZero() {
		return nil, errors.Validation(map[string]string{"consumer": "this field is required"})
	}
	units, err := o.units.LockByConsumer(ctx, tenantID, consumer)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, errors.NotFound("allocation")
	}
	for i := range units {
		if !allowed(units[i].Status) {
			return nil, errors.StateTransition(fmt.Sprintf("cannot %s %s: unit %s is %s", verb, consumer, units[i].ID, units[i].Status))
		}
	}
	return units, nil
}

func unitDraws(units []domain.Unit, qty func(*domain.Unit) decimal.Decimal) []domain.UnitDraw {
	draws := make([]domain.UnitDraw, 0, len(units))
	for i := range units {
		draws = append(draws, drawOf(&units[i], qty(&units[i])))
	}
	return draws
}

func heldQty(u *domain.Unit) decimal.Decimal { return u.DrawnQuantity }

// Release returns every RESERVED unit of consumer to AVAILABLE with exactly
// the amount it held. Consumed or in-transit units fail the whole call.
func (o *Orchestrator) Release(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	var released []domain.UnitDraw
	err := o.inTx(ctx, tenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, tenantID, consumer, isReserved, "release")
		if err != nil {
			return err
		}
		released = unitDraws(units, heldQty)
		for i := range units {
			if err := o.release(ctx, &units[i], false, domain.MovementRelease, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		o.logFailure(err, tenantID, consumer, "release failed")
		return nil, err
	}

	o.logger.Debug().Str("tenant_id", tenantID).Str("consumer", consumer.String()).Int("units", len(released)).Msg("stock released")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: tenantID,
		Consumer: consumer,
		Action:   domain.MovementRelease,
		Status:   domain.StatusAvailable,
		Draws:    released,
	})
	return released, nil
}

// Consume confirms a reservation, moving every RESERVED unit of consumer to
// the terminal status of its kind.
func (o *Orchestrator) Consume(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	if err := directConsume(consumer); err != nil {
		return nil, err
	}
	target := consumer.ConsumedStatus()
	var consumed []domain.UnitDraw
	err := o.inTx(ctx, tenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, tenantID, consumer, isReserved, "consume")
		if err != nil {
			return err
		}
		for i := range units {
			if err := o.transition(ctx, &units[i], target, consumer, domain.MovementConsume, nil); err != nil {
				return err
			}
		}
		consumed = unitDraws(units, heldQty)
		return nil
	})
	if err != nil {
		o.logFailure(err, tenantID, consumer, "consume failed")
		return nil, err
	}

	o.logger.Debug().Str("tenant_id", tenantID).Str("consumer", consumer.String()).Str("status", string(target)).Msg("reservation consumed")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: tenantID,
		Consumer: consumer,
		Action:   domain.MovementConsume,
		Status:   target,
		Draws:    consumed,
	})
	return consumed, nil
}

func isReserved(s domain.UnitStatus) bool { return s == domain.StatusReserved }

// Reallocate releases what consumer holds and allocates in.Lines afresh, in
// one transaction. On failure the original hold is untouched.
func (o *Orchestrator) Reallocate(ctx context.Context, in OrderInput) (*Allocation, error) {
	strategy, err := o.validateOrder(in)
	if err != nil {
		return nil, err
	}

	var (
		alloc    *Allocation
		released []domain.UnitDraw
	)
	err = o.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, in.TenantID, in.Consumer, isReserved, "reallocate")
		if err != nil {
			return err
		}
		released = unitDraws(units, heldQty)
		for i := range units {
			if err := o.release(ctx, &units[i], false, domain.MovementRelease, strPtr("reallocation")); err != nil {
				return err
			}
		}
		alloc, err = o.allocateTx(ctx, in, strategy)
		return err
	})
	if err != nil {
		o.logFailure(err, in.TenantID, in.Consumer, "reallocation failed")
		return nil, err
	}

	o.logger.Debug().Str("tenant_id", in.TenantID).Str("consumer", in.Consumer.String()).Msg("stock reallocated")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: in.TenantID,
		Consumer: in.Consumer,
		Action:   domain.MovementRelease,
		Status:   domain.StatusAvailable,
		Draws:    released,
	})
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: in.TenantID,
		Consumer: in.Consumer,
		Action:   actionFor(in.Mode),
		Status:   alloc.Status,
		Draws:    alloc.Draws(),
	})
	return alloc, nil
}

// CancelOrder reverses a whole order: reserved, sold and issued units of
// consumer go back to AVAILABLE, each audited with reason. In-transit,
// transferred or adjusted units cannot be reversed.
func (o *Orchestrator) CancelOrder(ctx context.Context, tenantID string, consumer domain.ConsumerRef, reason string) ([]domain.UnitDraw, error) {
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "this field is required"})
	}

	var returned []domain.UnitDraw
	err := o.inTx(ctx, tenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, tenantID, consumer, domain.CanReverse, "cancel")
		if err != nil {
			return err
		}
		returned = unitDraws(units, heldQty)
		for i := range units {
			if err := o.release(ctx, &units[i], true, domain.MovementCancel, &reason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		o.logFailure(err, tenantID, consumer, "cancellation failed")
		return nil, err
	}

	o.logger.Info().Str("tenant_id", tenantID).Str("consumer", consumer.String()).Str("reason", reason).Msg("order cancelled, stock returned")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: tenantID,
		Consumer: consumer,
		Action:   domain.MovementCancel,
		Status:   domain.StatusAvailable,
		Draws:    returned,
	})
	return returned, nil
}

// PickTransfer ships the stock reserved for a transfer: RESERVED -> IN_TRANSIT.
func (o *Orchestrator) PickTransfer(ctx context.Context, tenantID, transferID string) ([]domain.UnitDraw, error) {
	consumer := domain.TransferRef(transferID)
	var picked []domain.UnitDraw
	err := o.inTx(ctx, tenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, tenantID, consumer, isReserved, "pick")
		if err != nil {
			return err
		}
		for i := range units {
			if err := o.transition(ctx, &units[i], domain.StatusInTransit, consumer, domain.MovementPick, nil); err != nil {
				return err
			}
		}
		picked = unitDraws(units, heldQty)
		return nil
	})
	if err != nil {
		o.logFailure(err, tenantID, consumer, "pick failed")
		return nil, err
	}

	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: tenantID,
		Consumer: consumer,
		Action:   domain.MovementPick,
		Status:   domain.StatusInTransit,
		Draws:    picked,
	})
	return picked, nil
}

// ReceiveTransferInput completes a transfer at its destination.
type ReceiveTransferInput struct {
	TenantID               string `json:"tenant_id" validate:"required,uuid"`
	TransferID             string `json:"transfer_id" validate:"required"`
	DestinationWarehouseID string `json:"destination_warehouse_id" validate:"required,uuid"`
}

// ReceiveTransfer closes the in-transit units of a transfer as TRANSFERRED and
// registers one TRANSFER batch per source batch at the destination carrying
// the same quantity, cost and expiry.
func (o *Orchestrator) ReceiveTransfer(ctx context.Context, in ReceiveTransferInput) ([]*domain.Batch, error) {
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	consumer := domain.TransferRef(in.TransferID)

	var (
		received []*domain.Batch
		moved    []domain.UnitDraw
	)
	err := o.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		units, err := o.lockHeld(ctx, in.TenantID, consumer, func(s domain.UnitStatus) bool { return s == domain.StatusInTransit }, "receive")
		if err != nil {
			return err
		}

		totals := make(map[string]decimal.Decimal)
		order := make([]string, 0)
		for i := range units {
			if err := o.transition(ctx, &units[i], domain.StatusTransferred, consumer, domain.MovementReceive, nil); err != nil {
				return err
			}
			if _, seen := totals[units[i].BatchID]; !seen {
				order = append(order, units[i].BatchID)
				totals[units[i].BatchID] = decimal.Zero
			}
			totals[units[i].BatchID] = totals[units[i].BatchID].Add(units[i].DrawnQuantity)
		}
		moved = unitDraws(units, heldQty)
		sort.Strings(order)

		reference := "transfer:" + in.TransferID
		dest := in.DestinationWarehouseID
		for _, batchID := range order {
			src, err := o.batches.GetByID(ctx, in.TenantID, batchID)
			if err != nil {
				return err
			}
			b := &domain.Batch{
				TenantID:    in.TenantID,
				ItemID:      src.ItemID,
				WarehouseID: &dest,
				SupplierID:  src.SupplierID,
				Quantity:    totals[batchID],
				UnitCost:    src.UnitCost,
				ExpiryDate:  src.ExpiryDate,
				ReceivedAt:  o.now(),
				ReceiptType: domain.ReceiptTransfer,
				Reference:   &reference,
			}
			if err := o.createBatch(ctx, b, &reference); err != nil {
				return err
			}
			received = append(received, b)
		}
		return nil
	})
	if err != nil {
		o.logFailure(err, in.TenantID, consumer, "transfer receipt failed")
		return nil, err
	}

	o.logger.Info().
		Str("tenant_id", in.TenantID).
		Str("transfer_id", in.TransferID).
		Str("warehouse_id", in.DestinationWarehouseID).
		Int("batches", len(received)).
		Msg("transfer received")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: in.TenantID,
		Consumer: consumer,
		Action:   domain.MovementReceive,
		Status:   domain.StatusTransferred,
		Draws:    moved,
	})
	for _, b := range received {
		o.publisher.BatchRegistered(ctx, b)
	}
	return received, nil
}

// WriteOffInput removes damaged, lost or expired stock from a batch.
type WriteOffInput struct {
	TenantID  string          `json:"tenant_id" validate:"required,uuid"`
	BatchID   string          `json:"batch_id" validate:"required,uuid"`
	Quantity  decimal.Decimal `json:"quantity" validate:"gt=0"`
	Reason    string          `json:"reason" validate:"required,max=500"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=64"`
}

// WriteOff moves Quantity of AVAILABLE stock of a batch to ADJUSTED, oldest
// units first. The batch quantity is unchanged; the stock is accounted for as
// adjusted.
func (o *Orchestrator) WriteOff(ctx context.Context, in WriteOffInput) ([]domain.UnitDraw, error) {
	if err := httputil.Validate(in); err != nil {
		return nil, err
	}
	ref := uuid.New().String()
	if in.Reference != nil && *in.Reference != "" {
		ref = *in.Reference
	}
	consumer := domain.AdjustmentRef(ref)

	var draws []domain.UnitDraw
	err := o.inTx(ctx, in.TenantID, func(ctx context.Context) error {
		b, err := o.batches.GetForUpdate(ctx, in.TenantID, in.BatchID)
		if err != nil {
			return err
		}
		candidates, err := o.units.LockAvailableByBatch(ctx, in.TenantID, b.ID)
		if err != nil {
			return err
		}
		result := selection.Select(candidates, in.Quantity, domain.FIFO)
		if !result.Fulfilled() {
			return domain.NewInsufficientStock(b.ItemID, result.Drawn, in.Quantity)
		}

		byID := make(map[string]*domain.Unit, len(candidates))
		for i := range candidates {
			byID[candidates[i].ID] = &candidates[i]
		}
		draws = make([]domain.UnitDraw, 0, len(result.Draws))
		for _, d := range result.Draws {
			drawn, err := o.draw(ctx, byID[d.UnitID], d.Quantity, domain.StatusAdjusted, consumer, domain.MovementWriteOff, &in.Reason)
			if err != nil {
				return err
			}
			draws = append(draws, drawOf(&drawn, d.Quantity))
		}
		return nil
	})
	if err != nil {
		o.logFailure(err, in.TenantID, consumer, "write-off failed")
		return nil, err
	}

	o.logger.Info().
		Str("tenant_id", in.TenantID).
		Str("batch_id", in.BatchID).
		Str("quantity", in.Quantity.String()).
		Str("reason", in.Reason).
		Msg("stock written off")
	o.publisher.Allocation(ctx, AllocationChange{
		TenantID: in.TenantID,
		Consumer: consumer,
		Action:   domain.MovementWriteOff,
		Status:   domain.StatusAdjusted,
		Draws:    draws,
	})
	return draws, nil
}

// Holdings lists the units currently linked to consumer.
func (o *Orchestrator) Holdings(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	var draws []domain.UnitDraw
	err := o.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		units, err := o.units.ListByConsumer(ctx, tenantID, consumer)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return errors.NotFound("allocation")
		}
		draws = unitDraws(units, heldQty)
		return nil
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return draws, nil
}

func (o *Orchestrator) logFailure(err error, tenantID string, consumer domain.ConsumerRef, msg string) {
	switch {
	case errors.Is(err, errors.ErrConcurrencyConflict):
		o.logger.Warn().Err(err).Str("tenant_id", tenantID).Str("consumer", consumer.String()).Msg(msg)
	case errors.Is(err, errors.ErrInsufficientStock):
		o.logger.Info().Err(err).Str("tenant_id", tenantID).Str("consumer", consumer.String()).Msg(msg)
	case errors.Is(err, errors.ErrValidation), errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrStateTransition):
		o.logger.Debug().Err(err).Str("tenant_id", tenantID).Str("consumer", consumer.String()).Msg(msg)
	default:
		o.logger.Error().Err(err).Str("tenant_id", tenantID).Str("consumer", consumer.String()).Msg(msg)
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
