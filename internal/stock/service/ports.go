// Package service holds the stock engine: the batch registry, the allocation
// orchestrator and the alerting monitor.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
)

// Transactor scopes work to one tenant transaction. *database.DB satisfies it.
type Transactor interface {
	WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error
	SetLockTimeout(ctx context.Context, d time.Duration) error
}

// BatchStore persists batches.
type BatchStore interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Batch, error)
	GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Batch, error)
	ListByItem(ctx context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error)
	UpdateQuantity(ctx context.Context, tenantID, id string, qty decimal.Decimal) error
	Delete(ctx context.Context, tenantID, id string) error
	ListExpiring(ctx context.Context, tenantID string, from, until time.Time) ([]*repository.ExpiringBatch, error)
}

// UnitStore persists ledger units. Lock* methods take row locks held until
// the surrounding transaction ends.
type UnitStore interface {
	Create(ctx context.Context, u *domain.Unit) error
	Update(ctx context.Context, u *domain.Unit, prevStatus domain.UnitStatus, prevAvailable decimal.Decimal) error
	ListAvailable(ctx context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error)
	LockAvailable(ctx context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error)
	LockAvailableByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Unit, error)
	LockByConsumer(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error)
	ListByConsumer(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error)
	ListByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Unit, error)
	StockLevel(ctx context.Context, tenantID, itemID string, warehouseID *string) (decimal.Decimal, error)
}

// MovementStore appends audit rows.
type MovementStore interface {
	Create(ctx context.Context, m *domain.Movement) error
	ListByBatch(ctx context.Context, tenantID, batchID string) ([]domain.Movement, error)
	HasActivity(ctx context.Context, tenantID, batchID string) (bool, error)
}

// RuleStore persists reorder rules.
type RuleStore interface {
	Create(ctx context.Context, rule *domain.ReorderRule) error
	Update(ctx context.Context, rule *domain.ReorderRule) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.ReorderRule, error)
	List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// AlertStore persists monitor findings.
type AlertStore interface {
	Upsert(ctx context.Context, a *domain.Alert) (bool, error)
	ResolveExcept(ctx context.Context, tenantID string, keep []string, at time.Time) (int64, error)
	List(ctx context.Context, tenantID string, f repository.AlertFilter) ([]*domain.Alert, error)
	Dismiss(ctx context.Context, tenantID, id, userID string, at time.Time) (*domain.Alert, error)
}

// AllocationChange describes units that moved for one consumer.
type AllocationChange struct {
	TenantID string
	Consumer domain.ConsumerRef
	Action   domain.MovementAction
	Status   domain.UnitStatus
	Draws    []domain.UnitDraw
}

// EventPublisher is told about committed ledger changes. Implementations must
// not fail the caller; the ledger is already committed.
type EventPublisher interface {
	BatchRegistered(ctx context.Context, b *domain.Batch)
	BatchAdjusted(ctx context.Context, b *domain.Batch, previous decimal.Decimal, reason string)
	Allocation(ctx context.Context, change AllocationChange)
}

// Notifier delivers freshly raised alerts.
type Notifier interface {
	AlertRaised(ctx context.Context, a *domain.Alert) error
}

// PurchaseOrderRequest asks purchasing to replenish an item.
type PurchaseOrderRequest struct {
	TenantID         string
	ItemID           string
	WarehouseID      *string
	SupplierID       string
	Quantity         decimal.Decimal
	ExpectedDelivery time.Time
	AlertID          string
}

// Purchasing creates purchase orders for auto-reorder rules.
type Purchasing interface {
	CreatePurchaseOrder(ctx context.Context, req PurchaseOrderRequest) error
}

type nopPublisher struct{}

func (nopPublisher) BatchRegistered(context.Context, *domain.Batch)                        {}
func (nopPublisher) BatchAdjusted(context.Context, *domain.Batch, decimal.Decimal, string) {}
func (nopPublisher) Allocation(context.Context, AllocationChange)                          {}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }
