package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy orders candidate units for selection.
type Strategy string

const (
	FIFO Strategy = "FIFO"
	LIFO Strategy = "LIFO"
)

// ParseStrategy accepts FIFO or LIFO in any case; empty yields def.
func ParseStrategy(s string, def Strategy) (Strategy, error) {
	if s == "" {
		return def, nil
	}
	switch st := Strategy(strings.ToUpper(s)); st {
	case FIFO, LIFO:
		return st, nil
	}
	return "", fmt.Errorf("unknown allocation strategy %q", s)
}

// Mode decides whether drawn units are held or consumed immediately.
type Mode string

const (
	ModeReserve Mode = "RESERVE"
	ModeConsume Mode = "CONSUME"
)

// TargetStatus is the status drawn units take for consumer under m.
func (m Mode) TargetStatus(consumer ConsumerRef) UnitStatus {
	if m == ModeReserve {
		return StatusReserved
	}
	return consumer.ConsumedStatus()
}

// UnitDraw is one (unit, amount) pair of an allocation.
type UnitDraw struct {
	UnitID     string          `json:"unit_id"`
	BatchID    string          `json:"batch_id"`
	ItemID     string          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// AllocationResult is what a selection pass could draw.
type AllocationResult struct {
	Draws     []UnitDraw      `json:"draws"`
	Requested decimal.Decimal `json:"requested"`
	Drawn     decimal.Decimal `json:"drawn"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// Fulfilled reports whether the draws cover the request.
func (r AllocationResult) Fulfilled() bool {
	return r.Shortfall.IsZero()
}
