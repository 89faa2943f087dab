package domain

import (
	"fmt"
)

// ConsumerKind names the kind of record a unit is held against.
type ConsumerKind string

const (
	ConsumerSale         ConsumerKind = "sale"
	ConsumerInvoice      ConsumerKind = "invoice"
	ConsumerDispense     ConsumerKind = "dispense"
	ConsumerDeliveryItem ConsumerKind = "delivery_item"
	ConsumerIssuance     ConsumerKind = "issuance"
	ConsumerTransfer     ConsumerKind = "transfer"
	ConsumerAdjustment   ConsumerKind = "adjustment"
)

// ConsumerRef links a unit to exactly one consumer record. The zero value
// means "no consumer" and is only valid on AVAILABLE units.
type ConsumerRef struct {
	kind ConsumerKind
	id   string
}

func SaleRef(id string) ConsumerRef         { return ConsumerRef{ConsumerSale, id} }
func InvoiceRef(id string) ConsumerRef      { return ConsumerRef{ConsumerInvoice, id} }
func DispenseRef(id string) ConsumerRef     { return ConsumerRef{ConsumerDispense, id} }
func DeliveryItemRef(id string) ConsumerRef { return ConsumerRef{ConsumerDeliveryItem, id} }
func IssuanceRef(id string) ConsumerRef     { return ConsumerRef{ConsumerIssuance, id} }
func TransferRef(id string) ConsumerRef     { return ConsumerRef{ConsumerTransfer, id} }
func AdjustmentRef(id string) ConsumerRef   { return ConsumerRef{ConsumerAdjustment, id} }

// ParseConsumerRef rebuilds a reference from its persisted parts. Both empty
// yields the zero value.
func ParseConsumerRef(kind, id string) (ConsumerRef, error) {
	if kind == "" && id == "" {
		return ConsumerRef{}, nil
	}
	if kind == "" || id == "" {
		return ConsumerRef{}, fmt.Errorf("consumer reference needs both kind and id, got %q/%q", kind, id)
	}
	k := ConsumerKind(kind)
	if _, ok := consumedStatus[k]; !ok {
		return ConsumerRef{}, fmt.Errorf("unknown consumer kind %q", kind)
	}
	return ConsumerRef{kind: k, id: id}, nil
}

func (c ConsumerRef) Kind() ConsumerKind { return c.kind }
func (c ConsumerRef) ID() string         { return c.id }
func (c ConsumerRef) IsZero() bool       { return c.kind == "" }

func (c ConsumerRef) String() string {
	if c.IsZero() {
		return "none"
	}
	return string(c.kind) + ":" + c.id
}

var consumedStatus = map[ConsumerKind]UnitStatus{
	ConsumerSale:         StatusSold,
	ConsumerInvoice:      StatusSold,
	ConsumerDispense:     StatusSold,
	ConsumerDeliveryItem: StatusSold,
	ConsumerIssuance:     StatusIssued,
	ConsumerTransfer:     StatusTransferred,
	ConsumerAdjustment:   StatusAdjusted,
}

// ConsumedStatus is the terminal status a unit reaches when this consumer
// confirms it.
func (c ConsumerRef) ConsumedStatus() UnitStatus {
	return consumedStatus[c.kind]
}
