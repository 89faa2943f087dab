// Package handler exposes the stock engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// BatchService is implemented by *service.Registry.
type BatchService interface {
	RegisterBatch(ctx context.Context, in service.RegisterBatchInput) (*domain.Batch, error)
	AdjustBatchQuantity(ctx context.Context, in service.AdjustBatchInput) (*domain.Batch, error)
	GetBatch(ctx context.Context, tenantID, batchID string) (*service.BatchDetail, error)
	ListBatches(ctx context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error)
	History(ctx context.Context, tenantID, batchID string) ([]domain.Movement, error)
	DeleteBatch(ctx context.Context, tenantID, batchID string) error
}

// AllocationService is implemented by *service.Orchestrator.
type AllocationService interface {
	AllocateOrder(ctx context.Context, in service.OrderInput) (*service.Allocation, error)
	Reallocate(ctx context.Context, in service.OrderInput) (*service.Allocation, error)
	SelectUnits(ctx context.Context, in service.SelectInput) (*domain.AllocationResult, error)
	Release(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error)
	Consume(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error)
	CancelOrder(ctx context.Context, tenantID string, consumer domain.ConsumerRef, reason string) ([]domain.UnitDraw, error)
	Holdings(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error)
	PickTransfer(ctx context.Context, tenantID, transferID string) ([]domain.UnitDraw, error)
	ReceiveTransfer(ctx context.Context, in service.ReceiveTransferInput) ([]*domain.Batch, error)
	WriteOff(ctx context.Context, in service.WriteOffInput) ([]domain.UnitDraw, error)
}

// MonitorService is implemented by *service.Monitor.
type MonitorService interface {
	Scan(ctx context.Context, tenantID string) (*service.ScanReport, error)
	ListAlerts(ctx context.Context, tenantID string, f repository.AlertFilter) ([]*domain.Alert, error)
	DismissAlert(ctx context.Context, tenantID, alertID, userID string) (*domain.Alert, error)
	CreateRule(ctx context.Context, in service.ReorderRuleInput) (*domain.ReorderRule, error)
	UpdateRule(ctx context.Context, ruleID string, in service.ReorderRuleInput) (*domain.ReorderRule, error)
	GetRule(ctx context.Context, tenantID, ruleID string) (*domain.ReorderRule, error)
	ListRules(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error)
	DeleteRule(ctx context.Context, tenantID, ruleID string) error
}

// Quoter prices drawn stock. *pricing.Quoter implements it.
type Quoter interface {
	Quote(ctx context.Context, in pricing.QuoteInput) (*pricing.OrderQuote, error)
}

// PricingStore reads and writes tenant pricing configuration.
type PricingStore interface {
	TenantPricing(ctx context.Context, tenantID string) (*pricing.TenantPricing, error)
	Save(ctx context.Context, tenantID string, p pricing.TenantPricing) error
}

// CacheBumper invalidates cached pricing. *pricing.ConfigCache implements it.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

func tenantID(r *http.Request) (string, error) {
	id, err := tenant.TenantID(r.Context())
	if err != nil {
		return "", errors.BadRequest("missing tenant context")
	}
	return id, nil
}

// consumerParam reads the consumer from the {kind}/{consumerID} path segments.
func consumerParam(r *http.Request) (domain.ConsumerRef, error) {
	ref, err := domain.ParseConsumerRef(chi.URLParam(r, "kind"), chi.URLParam(r, "consumerID"))
	if err != nil || ref.IsZero() {
		return domain.ConsumerRef{}, errors.Validation(map[string]string{"consumer": "unknown consumer kind or missing id"})
	}
	return ref, nil
}

func optionalQuery(r *http.Request, key string) *string {
	if v := r.URL.Query().Get(key); v != "" {
		return &v
	}
	return nil
}
