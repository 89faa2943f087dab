package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Batch builds a purchase-order batch of 10 units at cost 5 received on
// 2025-01-01 plus the fixture sequence in minutes.
func (f *FixtureFactory) Batch(tenantID, itemID string, opts ...func(*domain.Batch)) domain.Batch {
	seq := f.nextSeq()
	b := domain.Batch{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ItemID:      itemID,
		Quantity:    decimal.NewFromInt(10),
		UnitCost:    decimal.NewFromInt(5),
		ReceivedAt:  time.Date(2025, 1, 1, 0, seq, 0, 0, time.UTC),
		ReceiptType: domain.ReceiptPurchaseOrder,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithQuantity sets the batch quantity
func WithQuantity(qty int64) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.Quantity = decimal.NewFromInt(qty)
	}
}

// WithUnitCost sets the batch unit cost
func WithUnitCost(cost string) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.UnitCost = decimal.RequireFromString(cost)
	}
}

// WithExpiry sets the batch expiry date
func WithExpiry(t time.Time) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.ExpiryDate = &t
	}
}

// WithWarehouse sets the batch warehouse
func WithWarehouse(id string) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.WarehouseID = &id
	}
}

// WithReceivedAt sets when the batch was received
func WithReceivedAt(t time.Time) func(*domain.Batch) {
	return func(b *domain.Batch) {
		b.ReceivedAt = t
	}
}

// ReorderRule builds an active rule with min 10, reorder point 20, max 100.
func (f *FixtureFactory) ReorderRule(tenantID, itemID string, opts ...func(*domain.ReorderRule)) domain.ReorderRule {
	r := domain.ReorderRule{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ItemID:          itemID,
		MinLevel:        decimal.NewFromInt(10),
		ReorderPoint:    decimal.NewFromInt(20),
		MaxLevel:        decimal.NewFromInt(100),
		ReorderQuantity: decimal.NewFromInt(50),
		LeadTimeDays:    7,
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithAutoReorder enables auto reorder from supplierID
func WithAutoReorder(supplierID string) func(*domain.ReorderRule) {
	return func(r *domain.ReorderRule) {
		r.AutoReorder = true
		r.PreferredSupplierID = &supplierID
	}
}
