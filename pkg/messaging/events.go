package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stock events published by the stock service
const (
	EventBatchRegistered  = "stock.batch.registered"
	EventBatchAdjusted    = "stock.batch.adjusted"
	EventStockAllocated   = "stock.allocated"
	EventStockReleased    = "stock.released"
	EventStockConsumed    = "stock.consumed"
	EventStockCancelled   = "stock.cancelled"
	EventStockTransferred = "stock.transferred"
	EventStockWrittenOff  = "stock.written_off"
	EventAlertRaised      = "stock.alert.raised"
	EventReorderRequested = "stock.reorder.requested"
)

// Order events consumed by the stock service
const (
	EventOrderCancelled     = "order.cancelled"
	EventReservationExpired = "order.reservation.expired"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
	ExchangeOrderEvents = "order.events"
)

// Event is the envelope every message travels in
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Quantities travel as decimal strings so no precision is lost on the wire.

// BatchRegisteredEvent is published when stock enters the ledger
type BatchRegisteredEvent struct {
	TenantID    string  `json:"tenant_id"`
	BatchID     string  `json:"batch_id"`
	ItemID      string  `json:"item_id"`
	WarehouseID *string `json:"warehouse_id,omitempty"`
	Quantity    string  `json:"quantity"`
	UnitCost    string  `json:"unit_cost"`
	ReceiptType string  `json:"receipt_type"`
	ExpiryDate  *string `json:"expiry_date,omitempty"`
}

// BatchAdjustedEvent is published when a batch quantity is corrected
type BatchAdjustedEvent struct {
	TenantID    string `json:"tenant_id"`
	BatchID     string `json:"batch_id"`
	ItemID      string `json:"item_id"`
	OldQuantity string `json:"old_quantity"`
	NewQuantity string `json:"new_quantity"`
	Reason      string `json:"reason,omitempty"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// UnitDrawData is one drawn slice inside an allocation event
type UnitDrawData struct {
	UnitID   string `json:"unit_id"`
	BatchID  string `json:"batch_id"`
	ItemID   string `json:"item_id"`
	Quantity string `json:"quantity"`
	UnitCost string `json:"unit_cost"`
}

// AllocationEvent is published for allocations, releases, consumptions and
// cancellations of one consumer.
type AllocationEvent struct {
	TenantID     string         `json:"tenant_id"`
	ConsumerKind string         `json:"consumer_kind"`
	ConsumerID   string         `json:"consumer_id"`
	Status       string         `json:"status"`
	Draws        []UnitDrawData `json:"draws"`
}

// AlertRaisedEvent is published when the monitor opens a new alert
type AlertRaisedEvent struct {
	TenantID        string  `json:"tenant_id"`
	AlertID         string  `json:"alert_id"`
	AlertType       string  `json:"alert_type"`
	Severity        string  `json:"severity"`
	Message         string  `json:"message"`
	ItemID          string  `json:"item_id"`
	WarehouseID     *string `json:"warehouse_id,omitempty"`
	BatchID         *string `json:"batch_id,omitempty"`
	CurrentStock    *string `json:"current_stock,omitempty"`
	DaysUntilExpiry *int    `json:"days_until_expiry,omitempty"`
}

// ReorderRequestedEvent asks purchasing to raise a purchase order
type ReorderRequestedEvent struct {
	TenantID         string    `json:"tenant_id"`
	RequestID        string    `json:"request_id"`
	ItemID           string    `json:"item_id"`
	WarehouseID      *string   `json:"warehouse_id,omitempty"`
	SupplierID       string    `json:"supplier_id"`
	Quantity         string    `json:"quantity"`
	ExpectedDelivery time.Time `json:"expected_delivery"`
	AlertID          string    `json:"alert_id"`
}

// OrderEvent is the payload of inbound order events. ConsumerKind is one of
// the ledger consumer kinds, e.g. "sale" or "invoice".
type OrderEvent struct {
	TenantID     string `json:"tenant_id"`
	ConsumerKind string `json:"consumer_kind"`
	ConsumerID   string `json:"consumer_id"`
	Reason       string `json:"reason,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}
