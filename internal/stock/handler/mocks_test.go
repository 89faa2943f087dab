package handler_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
)

type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) RegisterBatch(ctx context.Context, in service.RegisterBatchInput) (*domain.Batch, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchService) AdjustBatchQuantity(ctx context.Context, in service.AdjustBatchInput) (*domain.Batch, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Batch), args.Error(1)
}

func (m *MockBatchService) GetBatch(ctx context.Context, tenantID, batchID string) (*service.BatchDetail, error) {
	args := m.Called(ctx, tenantID, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchDetail), args.Error(1)
}

func (m *MockBatchService) ListBatches(ctx context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error) {
	args := m.Called(ctx, tenantID, itemID, warehouseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Batch), args.Error(1)
}

func (m *MockBatchService) History(ctx context.Context, tenantID, batchID string) ([]domain.Movement, error) {
	args := m.Called(ctx, tenantID, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Movement), args.Error(1)
}

func (m *MockBatchService) DeleteBatch(ctx context.Context, tenantID, batchID string) error {
	args := m.Called(ctx, tenantID, batchID)
	return args.Error(0)
}

type MockAllocationService struct {
	mock.Mock
}

func (m *MockAllocationService) allocation(args mock.Arguments) (*service.Allocation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Allocation), args.Error(1)
}

func (m *MockAllocationService) draws(args mock.Arguments) ([]domain.UnitDraw, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UnitDraw), args.Error(1)
}

func (m *MockAllocationService) AllocateOrder(ctx context.Context, in service.OrderInput) (*service.Allocation, error) {
	return m.allocation(m.Called(ctx, in))
}

func (m *MockAllocationService) Reallocate(ctx context.Context, in service.OrderInput) (*service.Allocation, error) {
	return m.allocation(m.Called(ctx, in))
}

func (m *MockAllocationService) SelectUnits(ctx context.Context, in service.SelectInput) (*domain.AllocationResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AllocationResult), args.Error(1)
}

func (m *MockAllocationService) Release(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, tenantID, consumer))
}

func (m *MockAllocationService) Consume(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, tenantID, consumer))
}

func (m *MockAllocationService) CancelOrder(ctx context.Context, tenantID string, consumer domain.ConsumerRef, reason string) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, tenantID, consumer, reason))
}

func (m *MockAllocationService) Holdings(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, tenantID, consumer))
}

func (m *MockAllocationService) PickTransfer(ctx context.Context, tenantID, transferID string) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, tenantID, transferID))
}

func (m *MockAllocationService) ReceiveTransfer(ctx context.Context, in service.ReceiveTransferInput) ([]*domain.Batch, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Batch), args.Error(1)
}

func (m *MockAllocationService) WriteOff(ctx context.Context, in service.WriteOffInput) ([]domain.UnitDraw, error) {
	return m.draws(m.Called(ctx, in))
}

type MockMonitorService struct {
	mock.Mock
}

func (m *MockMonitorService) Scan(ctx context.Context, tenantID string) (*service.ScanReport, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ScanReport), args.Error(1)
}

func (m *MockMonitorService) ListAlerts(ctx context.Context, tenantID string, f repository.AlertFilter) ([]*domain.Alert, error) {
	args := m.Called(ctx, tenantID, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Alert), args.Error(1)
}

func (m *MockMonitorService) DismissAlert(ctx context.Context, tenantID, alertID, userID string) (*domain.Alert, error) {
	args := m.Called(ctx, tenantID, alertID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Alert), args.Error(1)
}

func (m *MockMonitorService) rule(args mock.Arguments) (*domain.ReorderRule, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReorderRule), args.Error(1)
}

func (m *MockMonitorService) CreateRule(ctx context.Context, in service.ReorderRuleInput) (*domain.ReorderRule, error) {
	return m.rule(m.Called(ctx, in))
}

func (m *MockMonitorService) UpdateRule(ctx context.Context, ruleID string, in service.ReorderRuleInput) (*domain.ReorderRule, error) {
	return m.rule(m.Called(ctx, ruleID, in))
}

func (m *MockMonitorService) GetRule(ctx context.Context, tenantID, ruleID string) (*domain.ReorderRule, error) {
	return m.rule(m.Called(ctx, tenantID, ruleID))
}

func (m *MockMonitorService) ListRules(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error) {
	args := m.Called(ctx, tenantID, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReorderRule), args.Error(1)
}

func (m *MockMonitorService) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	args := m.Called(ctx, tenantID, ruleID)
	return args.Error(0)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Quote(ctx context.Context, in pricing.QuoteInput) (*pricing.OrderQuote, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.OrderQuote), args.Error(1)
}

type MockPricingStore struct {
	mock.Mock
}

func (m *MockPricingStore) TenantPricing(ctx context.Context, tenantID string) (*pricing.TenantPricing, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.TenantPricing), args.Error(1)
}

func (m *MockPricingStore) Save(ctx context.Context, tenantID string, p pricing.TenantPricing) error {
	args := m.Called(ctx, tenantID, p)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Bump(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
