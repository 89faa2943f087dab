package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/pkg/errors"
)

// UnitStatus is the ledger state of a unit.
type UnitStatus string

const (
	StatusAvailable   UnitStatus = "AVAILABLE"
	StatusReserved    UnitStatus = "RESERVED"
	StatusInTransit   UnitStatus = "IN_TRANSIT"
	StatusSold        UnitStatus = "SOLD"
	StatusIssued      UnitStatus = "ISSUED"
	StatusTransferred UnitStatus = "TRANSFERRED"
	StatusAdjusted    UnitStatus = "ADJUSTED"
)

// TRANSFERRED is only reached through IN_TRANSIT, and IN_TRANSIT only ends at
// the destination.
var transitions = map[UnitStatus][]UnitStatus{
	StatusAvailable: {StatusReserved, StatusSold, StatusIssued, StatusAdjusted},
	StatusReserved:  {StatusAvailable, StatusInTransit, StatusSold, StatusIssued, StatusAdjusted},
	StatusInTransit: {StatusTransferred},
}

func (s UnitStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusInTransit, StatusSold, StatusIssued, StatusTransferred, StatusAdjusted:
		return true
	}
	return false
}

// IsTerminal reports whether no regular transition leaves s.
func (s UnitStatus) IsTerminal() bool {
	switch s {
	case StatusSold, StatusIssued, StatusTransferred, StatusAdjusted:
		return true
	}
	return false
}

// IsHeld reports whether s holds stock without having consumed it.
func (s UnitStatus) IsHeld() bool {
	return s == StatusReserved || s == StatusInTransit
}

// CanTransition reports whether the ledger allows from -> to.
func CanTransition(from, to UnitStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanReverse reports whether a full-order cancellation may return a unit in
// status s to AVAILABLE.
func CanReverse(s UnitStatus) bool {
	switch s {
	case StatusSold, StatusIssued, StatusReserved:
		return true
	}
	return false
}

// Unit is an allocatable slice of a batch. Item, warehouse, expiry, receipt
// date and cost are copied from the batch.
//
// An AVAILABLE unit has QuantityAvailable > 0 and DrawnQuantity = 0. Any
// other unit has QuantityAvailable = 0 and holds DrawnQuantity for Consumer.
type Unit struct {
	ID                string
	Seq               int64
	BatchID           string
	TenantID          string
	ItemID            string
	WarehouseID       *string
	ExpiryDate        *time.Time
	ReceivedAt        time.Time
	UnitCost          decimal.Decimal
	ParentUnitID      *string
	Status            UnitStatus
	Quantity          decimal.Decimal
	QuantityAvailable decimal.Decimal
	DrawnQuantity     decimal.Decimal
	Consumer          ConsumerRef
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewUnit spawns an AVAILABLE unit carrying qty of batch b.
func NewUnit(b *Batch, qty decimal.Decimal) Unit {
	return Unit{
		ID:                uuid.New().String(),
		BatchID:           b.ID,
		TenantID:          b.TenantID,
		ItemID:            b.ItemID,
		WarehouseID:       b.WarehouseID,
		ExpiryDate:        b.ExpiryDate,
		ReceivedAt:        b.ReceivedAt,
		UnitCost:          b.UnitCost,
		Status:            StatusAvailable,
		Quantity:          qty,
		QuantityAvailable: qty,
		DrawnQuantity:     decimal.Zero,
	}
}

// Held is the quantity a unit contributes to its batch total.
func (u *Unit) Held() decimal.Decimal {
	if u.Status == StatusAvailable {
		return u.QuantityAvailable
	}
	return u.DrawnQuantity
}

// Transition moves a non-AVAILABLE unit along the ledger graph keeping its
// drawn amount. Use Draw to leave AVAILABLE and Release to return to it.
func (u *Unit) Transition(to UnitStatus, consumer ConsumerRef) error {
	if u.Status == StatusAvailable || to == StatusAvailable {
		return errors.StateTransition(fmt.Sprintf("unit %s: use Draw or Release for %s -> %s", u.ID, u.Status, to))
	}
	if !CanTransition(u.Status, to) {
		return errors.StateTransition(fmt.Sprintf("unit %s cannot move from %s to %s", u.ID, u.Status, to))
	}
	if consumer.IsZero() {
		return errors.StateTransition(fmt.Sprintf("unit %s: %s requires a consumer", u.ID, to))
	}
	u.Status = to
	u.Consumer = consumer
	return nil
}

// Draw takes amount from an AVAILABLE unit for consumer. When amount equals
// the available quantity the unit itself changes status and is returned with
// split false; otherwise the unit keeps the remainder and a new child unit
// holding amount is returned with split true.
func (u *Unit) Draw(amount decimal.Decimal, to UnitStatus, consumer ConsumerRef) (Unit, bool, error) {
	if u.Status != StatusAvailable {
		return Unit{}, false, errors.StateTransition(fmt.Sprintf("unit %s is %s, not AVAILABLE", u.ID, u.Status))
	}
	if !CanTransition(StatusAvailable, to) {
		return Unit{}, false, errors.StateTransition(fmt.Sprintf("unit %s cannot move from AVAILABLE to %s", u.ID, to))
	}
	if consumer.IsZero() {
		return Unit{}, false, errors.StateTransition(fmt.Sprintf("unit %s: %s requires a consumer", u.ID, to))
	}
	if !amount.IsPositive() || amount.GreaterThan(u.QuantityAvailable) {
		return Unit{}, false, errors.BadRequest(fmt.Sprintf("cannot draw %s from unit %s with %s available", amount, u.ID, u.QuantityAvailable))
	}

	if amount.Equal(u.QuantityAvailable) {
		u.Status = to
		u.QuantityAvailable = decimal.Zero
		u.DrawnQuantity = amount
		u.Consumer = consumer
		return *u, false, nil
	}

	u.QuantityAvailable = u.QuantityAvailable.Sub(amount)
	parentID := u.ID
	child := Unit{
		ID:                uuid.New().String(),
		BatchID:           u.BatchID,
		TenantID:          u.TenantID,
		ItemID:            u.ItemID,
		WarehouseID:       u.WarehouseID,
		ExpiryDate:        u.ExpiryDate,
		ReceivedAt:        u.ReceivedAt,
		UnitCost:          u.UnitCost,
		ParentUnitID:      &parentID,
		Status:            to,
		Quantity:          amount,
		QuantityAvailable: decimal.Zero,
		DrawnQuantity:     amount,
		Consumer:          consumer,
	}
	return child, true, nil
}

// Release returns a reserved unit to AVAILABLE with its drawn amount. Sold and
// issued units are only accepted when reversal is true. In-transit units never
// return.
func (u *Unit) Release(reversal bool) error {
	switch {
	case u.Status == StatusReserved:
	case reversal && CanReverse(u.Status):
	default:
		return errors.StateTransition(fmt.Sprintf("unit %s is %s and cannot be released", u.ID, u.Status))
	}
	if !u.DrawnQuantity.IsPositive() {
		return errors.StateTransition(fmt.Sprintf("unit %s holds no quantity", u.ID))
	}
	u.Status = StatusAvailable
	u.QuantityAvailable = u.DrawnQuantity
	u.DrawnQuantity = decimal.Zero
	u.Consumer = ConsumerRef{}
	return nil
}

// Shrink removes amount from an AVAILABLE unit without a consumer draw. A unit
// shrunk to zero is closed as ADJUSTED against adjustment.
func (u *Unit) Shrink(amount decimal.Decimal, adjustment ConsumerRef) error {
	if u.Status != StatusAvailable {
		return errors.StateTransition(fmt.Sprintf("unit %s is %s, not AVAILABLE", u.ID, u.Status))
	}
	if !amount.IsPositive() || amount.GreaterThan(u.QuantityAvailable) {
		return errors.BadRequest(fmt.Sprintf("cannot shrink unit %s by %s", u.ID, amount))
	}
	u.QuantityAvailable = u.QuantityAvailable.Sub(amount)
	if u.QuantityAvailable.IsZero() {
		u.Status = StatusAdjusted
		u.Consumer = adjustment
	}
	return nil
}

// Validate checks the row-level ledger invariants.
func (u *Unit) Validate() error {
	if !u.Status.Valid() {
		return fmt.Errorf("unit %s: unknown status %q", u.ID, u.Status)
	}
	if u.QuantityAvailable.IsNegative() || u.DrawnQuantity.IsNegative() {
		return fmt.Errorf("unit %s: negative quantity", u.ID)
	}
	if u.QuantityAvailable.GreaterThan(u.Quantity) {
		return fmt.Errorf("unit %s: available %s exceeds quantity %s", u.ID, u.QuantityAvailable, u.Quantity)
	}
	if u.Status == StatusAvailable {
		if !u.QuantityAvailable.IsPositive() {
			return fmt.Errorf("unit %s: AVAILABLE with nothing available", u.ID)
		}
		if !u.Consumer.IsZero() || !u.DrawnQuantity.IsZero() {
			return fmt.Errorf("unit %s: AVAILABLE unit holds %s for %s", u.ID, u.DrawnQuantity, u.Consumer)
		}
		return nil
	}
	if !u.QuantityAvailable.IsZero() {
		return fmt.Errorf("unit %s: %s unit has %s available", u.ID, u.Status, u.QuantityAvailable)
	}
	if u.Consumer.IsZero() {
		return fmt.Errorf("unit %s: %s unit has no consumer", u.ID, u.Status)
	}
	return nil
}

// CheckConservation verifies that units account for exactly the batch quantity.
func CheckConservation(b *Batch, units []Unit) error {
	total := decimal.Zero
	for i := range units {
		if units[i].BatchID != b.ID {
			continue
		}
		if err := units[i].Validate(); err != nil {
			return err
		}
		total = total.Add(units[i].Held())
	}
	if !total.Equal(b.Quantity) {
		return fmt.Errorf("batch %s: units hold %s, batch quantity is %s", b.ID, total, b.Quantity)
	}
	return nil
}
