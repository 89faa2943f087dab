package messaging

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/medflow-stock/pkg/logger"
)

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func TestPublisher_Publish(t *testing.T) {
	ch := &recordingChannel{}
	p := newPublisher(ch, ExchangeStockEvents, "stock-service", logger.Nop())

	ctx := WithCorrelationID(context.Background(), "corr-1")
	err := p.Publish(ctx, EventAlertRaised, AlertRaisedEvent{AlertID: "a-1", ItemID: "item-1"})
	require.NoError(t, err)

	assert.Equal(t, ExchangeStockEvents, ch.exchange)
	assert.Equal(t, EventAlertRaised, ch.key)
	assert.Equal(t, "corr-1", ch.msg.CorrelationId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var event Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &event))
	assert.Equal(t, EventAlertRaised, event.Type)
	assert.Equal(t, "stock-service", event.Source)
	assert.Equal(t, ch.msg.MessageId, event.ID)

	var data AlertRaisedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, "a-1", data.AlertID)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &recordingChannel{err: stderrors.New("channel closed")}
	p := newPublisher(ch, ExchangeStockEvents, "stock-service", logger.Nop())

	err := p.Publish(context.Background(), EventStockReleased, AllocationEvent{})
	assert.ErrorContains(t, err, "channel closed")
}

type ackRecorder struct {
	acked, nacked, rejected, requeued bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.rejected, a.requeued = true, requeue
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, eventType string, redelivered bool) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "order-service", "corr", OrderEvent{ConsumerKind: "sale", ConsumerID: "S-1"})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestConsumer_HandleMessage(t *testing.T) {
	failing := func(context.Context, *Event) error { return stderrors.New("db down") }

	tests := []struct {
		name        string
		eventType   string
		handler     MessageHandler
		redelivered bool
		check       func(t *testing.T, a *ackRecorder)
	}{
		{
			name:      "handled",
			eventType: EventOrderCancelled,
			handler:   func(context.Context, *Event) error { return nil },
			check:     func(t *testing.T, a *ackRecorder) { assert.True(t, a.acked) },
		},
		{
			name:      "no handler",
			eventType: "order.created",
			check:     func(t *testing.T, a *ackRecorder) { assert.True(t, a.acked) },
		},
		{
			name:      "first failure requeues",
			eventType: EventOrderCancelled,
			handler:   failing,
			check: func(t *testing.T, a *ackRecorder) {
				assert.True(t, a.nacked)
				assert.True(t, a.requeued)
			},
		},
		{
			name:        "redelivered failure dead-letters",
			eventType:   EventOrderCancelled,
			handler:     failing,
			redelivered: true,
			check: func(t *testing.T, a *ackRecorder) {
				assert.True(t, a.rejected)
				assert.False(t, a.requeued)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Consumer{handlers: map[string]MessageHandler{}, logger: logger.Nop()}
			if tt.handler != nil {
				c.RegisterHandler(EventOrderCancelled, tt.handler)
			}

			ack := &ackRecorder{}
			c.handleMessage(context.Background(), delivery(t, ack, tt.eventType, tt.redelivered))
			tt.check(t, ack)
		})
	}
}

func TestConsumer_MalformedBodyIsRejected(t *testing.T) {
	c := &Consumer{handlers: map[string]MessageHandler{}, logger: logger.Nop()}
	ack := &ackRecorder{}
	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{")})
	assert.True(t, ack.rejected)
	assert.False(t, ack.requeued)
}
