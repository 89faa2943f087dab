package consumers

import (
	"context"
	"fmt"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// OrderService is the part of the allocation orchestrator driven by order
// events.
type OrderService interface {
	Release(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error)
	CancelOrder(ctx context.Context, tenantID string, consumer domain.ConsumerRef, reason string) ([]domain.UnitDraw, error)
}

// OrderEventConsumer returns stock when orders upstream are cancelled or
// their reservations lapse.
type OrderEventConsumer struct {
	consumer *messaging.Consumer
	orders   OrderService
	logger   *logger.Logger
}

// NewOrderEventConsumer creates a new order event consumer
func NewOrderEventConsumer(rmq *messaging.RabbitMQ, orders OrderService, log *logger.Logger) (*OrderEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.order-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeOrderEvents, "order.#"); err != nil {
		return nil, err
	}

	c := &OrderEventConsumer{
		consumer: consumer,
		orders:   orders,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventOrderCancelled, c.handleOrderCancelled)
	consumer.RegisterHandler(messaging.EventReservationExpired, c.handleReservationExpired)

	return c, nil
}

// Start starts consuming messages
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *OrderEventConsumer) decode(ctx context.Context, event *messaging.Event) (context.Context, messaging.OrderEvent, domain.ConsumerRef, error) {
	var data messaging.OrderEvent
	if err := event.UnmarshalData(&data); err != nil {
		return ctx, data, domain.ConsumerRef{}, err
	}
	ref, err := domain.ParseConsumerRef(data.ConsumerKind, data.ConsumerID)
	if err != nil {
		return ctx, data, ref, err
	}
	if ref.IsZero() || data.TenantID == "" {
		return ctx, data, ref, fmt.Errorf("order event %s is missing tenant or consumer", event.ID)
	}

	ctx = tenant.WithTenantID(ctx, data.TenantID)
	if data.UserID != "" {
		ctx = tenant.WithActorID(ctx, data.UserID)
	}
	return ctx, data, ref, nil
}

func (c *OrderEventConsumer) handleOrderCancelled(ctx context.Context, event *messaging.Event) error {
	ctx, data, ref, err := c.decode(ctx, event)
	if err != nil {
		return err
	}

	reason := data.Reason
	if reason == "" {
		reason = "order cancelled"
	}

	c.logger.Info().
		Str("tenant_id", data.TenantID).
		Str("consumer", ref.String()).
		Msg("received order cancelled event")

	_, err = c.orders.CancelOrder(ctx, data.TenantID, ref, reason)
	return c.settle(err, ref)
}

func (c *OrderEventConsumer) handleReservationExpired(ctx context.Context, event *messaging.Event) error {
	ctx, data, ref, err := c.decode(ctx, event)
	if err != nil {
		return err
	}

	c.logger.Info().
		Str("tenant_id", data.TenantID).
		Str("consumer", ref.String()).
		Msg("received reservation expired event")

	_, err = c.orders.Release(ctx, data.TenantID, ref)
	return c.settle(err, ref)
}

// settle decides whether a failed handler should be retried. Redeliveries
// of an already settled order find nothing left to return, and refused state
// transitions will not succeed on retry either.
func (c *OrderEventConsumer) settle(err error, ref domain.ConsumerRef) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrNotFound):
		c.logger.Debug().Str("consumer", ref.String()).Msg("nothing held for consumer, event already settled")
		return nil
	case errors.Is(err, errors.ErrStateTransition):
		c.logger.Warn().Err(err).Str("consumer", ref.String()).Msg("order event cannot be applied to current stock state")
		return nil
	default:
		return err
	}
}
