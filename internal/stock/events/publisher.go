package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// Sink is where events end up. *messaging.Publisher is the production sink.
type Sink interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// StockEventPublisher publishes stock ledger events. It serves as the
// engine's event publisher, alert notifier and purchasing gateway.
type StockEventPublisher struct {
	sink   Sink
	logger *logger.Logger
}

var (
	_ service.EventPublisher = (*StockEventPublisher)(nil)
	_ service.Notifier       = (*StockEventPublisher)(nil)
	_ service.Purchasing     = (*StockEventPublisher)(nil)
)

// NewStockEventPublisher creates a new stock event publisher on the stock
// exchange.
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps an existing sink.
func New(sink Sink, log *logger.Logger) *StockEventPublisher {
	return &StockEventPublisher{
		sink:   sink,
		logger: log,
	}
}

// BatchRegistered publishes a batch registered event
func (p *StockEventPublisher) BatchRegistered(ctx context.Context, b *domain.Batch) {
	if p == nil {
		return
	}
	data := messaging.BatchRegisteredEvent{
		TenantID:    b.TenantID,
		BatchID:     b.ID,
		ItemID:      b.ItemID,
		WarehouseID: b.WarehouseID,
		Quantity:    b.Quantity.String(),
		UnitCost:    b.UnitCost.String(),
		ReceiptType: string(b.ReceiptType),
	}
	if b.ExpiryDate != nil {
		d := b.ExpiryDate.Format("2006-01-02")
		data.ExpiryDate = &d
	}

	if err := p.sink.Publish(ctx, messaging.EventBatchRegistered, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch registered event")
	}
}

// BatchAdjusted publishes a batch adjusted event
func (p *StockEventPublisher) BatchAdjusted(ctx context.Context, b *domain.Batch, previous decimal.Decimal, reason string) {
	if p == nil {
		return
	}
	data := messaging.BatchAdjustedEvent{
		TenantID:    b.TenantID,
		BatchID:     b.ID,
		ItemID:      b.ItemID,
		OldQuantity: previous.String(),
		NewQuantity: b.Quantity.String(),
		Reason:      reason,
		PerformedBy: tenant.ActorID(ctx),
	}

	if err := p.sink.Publish(ctx, messaging.EventBatchAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch adjusted event")
	}
}

// Allocation publishes the event matching the ledger action of change.
func (p *StockEventPublisher) Allocation(ctx context.Context, change service.AllocationChange) {
	if p == nil || len(change.Draws) == 0 {
		return
	}

	draws := make([]messaging.UnitDrawData, 0, len(change.Draws))
	for _, d := range change.Draws {
		draws = append(draws, messaging.UnitDrawData{
			UnitID:   d.UnitID,
			BatchID:  d.BatchID,
			ItemID:   d.ItemID,
			Quantity: d.Quantity.String(),
			UnitCost: d.UnitCost.String(),
		})
	}
	data := messaging.AllocationEvent{
		TenantID:     change.TenantID,
		ConsumerKind: string(change.Consumer.Kind()),
		ConsumerID:   change.Consumer.ID(),
		Status:       string(change.Status),
		Draws:        draws,
	}

	eventType := allocationEventType(change.Action)
	if err := p.sink.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("consumer", change.Consumer.String()).
			Msg("failed to publish allocation event")
	}
}

func allocationEventType(a domain.MovementAction) string {
	switch a {
	case domain.MovementConsume:
		return messaging.EventStockConsumed
	case domain.MovementRelease:
		return messaging.EventStockReleased
	case domain.MovementCancel:
		return messaging.EventStockCancelled
	case domain.MovementPick, domain.MovementReceive:
		return messaging.EventStockTransferred
	case domain.MovementWriteOff:
		return messaging.EventStockWrittenOff
	default:
		return messaging.EventStockAllocated
	}
}

// AlertRaised publishes an alert raised event
func (p *StockEventPublisher) AlertRaised(ctx context.Context, a *domain.Alert) error {
	data := messaging.AlertRaisedEvent{
		TenantID:        a.TenantID,
		AlertID:         a.ID,
		AlertType:       string(a.Type),
		Severity:        string(a.Severity),
		Message:         a.Message,
		ItemID:          a.ItemID,
		WarehouseID:     a.WarehouseID,
		BatchID:         a.BatchID,
		DaysUntilExpiry: a.DaysUntilExpiry,
	}
	if a.CurrentStock != nil {
		s := a.CurrentStock.String()
		data.CurrentStock = &s
	}
	return p.sink.Publish(ctx, messaging.EventAlertRaised, data)
}

// CreatePurchaseOrder hands a reorder request to purchasing.
func (p *StockEventPublisher) CreatePurchaseOrder(ctx context.Context, req service.PurchaseOrderRequest) error {
	data := messaging.ReorderRequestedEvent{
		TenantID:         req.TenantID,
		RequestID:        uuid.New().String(),
		ItemID:           req.ItemID,
		WarehouseID:      req.WarehouseID,
		SupplierID:       req.SupplierID,
		Quantity:         req.Quantity.String(),
		ExpectedDelivery: req.ExpectedDelivery,
		AlertID:          req.AlertID,
	}
	if err := p.sink.Publish(ctx, messaging.EventReorderRequested, data); err != nil {
		return err
	}

	p.logger.Info().
		Str("tenant_id", req.TenantID).
		Str("item_id", req.ItemID).
		Str("supplier_id", req.SupplierID).
		Str("quantity", data.Quantity).
		Msg("reorder requested")
	return nil
}
