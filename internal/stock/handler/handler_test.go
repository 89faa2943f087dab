package handler_test

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/handler"
	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/permissions"
	"github.com/medflow/medflow-stock/pkg/testutil"
)

const (
	itemA  = "11111111-1111-1111-1111-111111111111"
	itemB  = "22222222-2222-2222-2222-222222222222"
	batchX = "33333333-3333-3333-3333-333333333333"
	userID = "44444444-4444-4444-4444-444444444444"
)

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
	Meta    *httputil.Meta      `json:"meta"`
}

type mocks struct {
	batches     *MockBatchService
	allocations *MockAllocationService
	monitor     *MockMonitorService
	quoter      *MockQuoter
	store       *MockPricingStore
	cache       *MockCache
}

func newRouter(t *testing.T, opts handler.RouterOptions) (http.Handler, *mocks) {
	t.Helper()
	m := &mocks{
		batches:     new(MockBatchService),
		allocations: new(MockAllocationService),
		monitor:     new(MockMonitorService),
		quoter:      new(MockQuoter),
		store:       new(MockPricingStore),
		cache:       new(MockCache),
	}
	t.Cleanup(func() {
		m.batches.AssertExpectations(t)
		m.allocations.AssertExpectations(t)
		m.monitor.AssertExpectations(t)
		m.quoter.AssertExpectations(t)
		m.store.AssertExpectations(t)
		m.cache.AssertExpectations(t)
	})

	log := logger.Nop()
	h := handler.Handlers{
		Batches:     handler.NewBatchHandler(m.batches, log),
		Allocations: handler.NewAllocationHandler(m.allocations, log),
		Alerts:      handler.NewAlertHandler(m.monitor, log),
		Pricing:     handler.NewPricingHandler(m.quoter, m.allocations, m.store, m.cache, log),
	}
	return handler.NewRouter(h, opts, log), m
}

func do(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := testutil.NewHTTPRequest(method, path, body)
	req = testutil.WithTenantHeader(req, testutil.TestTenantID)
	req = testutil.WithUserHeader(req, userID)
	rr := testutil.ExecuteRequest(router, req)

	var env envelope
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		testutil.ParseJSONBody(t, rr, &env)
	}
	return rr, env
}

func TestRouter_RequiresTenant(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/batches?item_id="+itemA, nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestRouter_EnforcesPermissions(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{EnforcePermissions: true})
	m.batches.On("GetBatch", mock.Anything, testutil.TestTenantID, batchX).Return(&service.BatchDetail{Batch: &domain.Batch{ID: batchX}}, nil)

	get := func(perms string) int {
		req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/stock/batches/"+batchX, nil)
		req = testutil.WithTenantHeader(req, testutil.TestTenantID)
		if perms != "" {
			req.Header.Set(permissions.Header, perms)
		}
		return testutil.ExecuteRequest(router, req).Code
	}

	assert.Equal(t, http.StatusForbidden, get(""))
	assert.Equal(t, http.StatusForbidden, get(`["stock.pricing.manage"]`))
	assert.Equal(t, http.StatusOK, get(`["stock.read"]`))
	m.batches.AssertNumberOfCalls(t, "GetBatch", 1)
}

func TestRouter_Health(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{
		Health: func(w http.ResponseWriter, r *http.Request) {
			httputil.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		},
	})

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/health", nil))

	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "healthy")
}

func TestBatchHandler_Create(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.batches.On("RegisterBatch", mock.Anything, mock.MatchedBy(func(in service.RegisterBatchInput) bool {
		return in.TenantID == testutil.TestTenantID && in.ItemID == itemA && in.Quantity.Equal(decimal.NewFromInt(12))
	})).Return(&domain.Batch{ID: batchX, ItemID: itemA, Quantity: decimal.NewFromInt(12)}, nil)

	rr, env := do(t, router, http.MethodPost, "/api/v1/stock/batches", map[string]any{
		"item_id":      itemA,
		"quantity":     "12",
		"unit_cost":    "4.5",
		"receipt_type": "PURCHASE_ORDER",
	})

	testutil.AssertStatus(t, rr, http.StatusCreated)
	var batch domain.Batch
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Equal(t, batchX, batch.ID)
}

func TestBatchHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{"validation", errors.Validation(map[string]string{"quantity": "must be greater than 0"}), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", errors.NotFound("batch"), http.StatusNotFound, "NOT_FOUND"},
		{"state", errors.StateTransition("batch has movements"), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"concurrency", errors.ConcurrencyConflict("lock timeout"), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{"unknown", stderrors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, m := newRouter(t, handler.RouterOptions{})
			m.batches.On("DeleteBatch", mock.Anything, testutil.TestTenantID, batchX).Return(tt.err)

			rr, env := do(t, router, http.MethodDelete, "/api/v1/stock/batches/"+batchX, nil)

			testutil.AssertStatus(t, rr, tt.status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.NotContains(t, rr.Body.String(), "pq:")
		})
	}
}

func TestBatchHandler_ListRequiresItem(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	rr, env := do(t, router, http.MethodGet, "/api/v1/stock/batches", nil)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Details, "item_id")
}

func TestBatchHandler_ListFiltersWarehouse(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	warehouse := "55555555-5555-5555-5555-555555555555"

	m.batches.On("ListBatches", mock.Anything, testutil.TestTenantID, itemA, &warehouse).
		Return([]*domain.Batch{{ID: batchX}}, nil)

	rr, env := do(t, router, http.MethodGet, "/api/v1/stock/batches?item_id="+itemA+"&warehouse_id="+warehouse, nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Count)
}

func TestBatchHandler_AdjustQuantity(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.batches.On("AdjustBatchQuantity", mock.Anything, mock.MatchedBy(func(in service.AdjustBatchInput) bool {
		return in.BatchID == batchX && in.NewQuantity.Equal(decimal.RequireFromString("7.5")) && in.Reason == "recount"
	})).Return(&domain.Batch{ID: batchX, Quantity: decimal.RequireFromString("7.5")}, nil)

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/batches/"+batchX+"/adjust", map[string]any{
		"quantity": "7.5",
		"reason":   "recount",
	})

	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestBatchHandler_MalformedBody(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/batches", nil)
	req.Body = http.NoBody
	req = testutil.WithTenantHeader(req, testutil.TestTenantID)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestAllocationHandler_Allocate(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.allocations.On("AllocateOrder", mock.Anything, mock.MatchedBy(func(in service.OrderInput) bool {
		return in.TenantID == testutil.TestTenantID &&
			in.Consumer == domain.SaleRef("s-1") &&
			in.Mode == domain.ModeReserve &&
			len(in.Lines) == 1
	})).Return(&service.Allocation{ConsumerKind: domain.ConsumerSale, ConsumerID: "s-1"}, nil)

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/allocations", map[string]any{
		"consumer_kind": "sale",
		"consumer_id":   "s-1",
		"mode":          "RESERVE",
		"lines":         []map[string]any{{"item_id": itemA, "quantity": "3"}},
	})

	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestAllocationHandler_AllocateShortfall(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.allocations.On("AllocateOrder", mock.Anything, mock.Anything).
		Return(nil, errors.InsufficientStock(itemA, "2", "3"))

	rr, env := do(t, router, http.MethodPost, "/api/v1/stock/allocations", map[string]any{
		"consumer_kind": "sale",
		"consumer_id":   "s-1",
		"mode":          "RESERVE",
		"lines":         []map[string]any{{"item_id": itemA, "quantity": "3"}},
	})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	assert.Equal(t, "2", env.Error.Details["available"])
}

func TestAllocationHandler_UnknownConsumerKind(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/allocations", map[string]any{
		"consumer_kind": "gift",
		"consumer_id":   "g-1",
		"mode":          "RESERVE",
	})
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/allocations/gift/g-1/release", nil)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestAllocationHandler_ConsumerPaths(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	draws := []domain.UnitDraw{{UnitID: "u1", BatchID: batchX, ItemID: itemA, Quantity: decimal.NewFromInt(2)}}
	consumer := domain.InvoiceRef("inv-9")

	m.allocations.On("Holdings", mock.Anything, testutil.TestTenantID, consumer).Return(draws, nil)
	m.allocations.On("Release", mock.Anything, testutil.TestTenantID, consumer).Return(draws, nil)
	m.allocations.On("Consume", mock.Anything, testutil.TestTenantID, consumer).
		Return(nil, errors.ConcurrencyConflict("could not lock units"))
	m.allocations.On("CancelOrder", mock.Anything, testutil.TestTenantID, consumer, "customer request").Return(draws, nil)

	rr, env := do(t, router, http.MethodGet, "/api/v1/stock/allocations/invoice/inv-9", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, 1, env.Meta.Count)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/allocations/invoice/inv-9/release", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/allocations/invoice/inv-9/consume", nil)
	testutil.AssertStatus(t, rr, http.StatusConflict)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/allocations/invoice/inv-9/cancel", map[string]string{"reason": "customer request"})
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAllocationHandler_Transfers(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	dest := "66666666-6666-6666-6666-666666666666"

	m.allocations.On("PickTransfer", mock.Anything, testutil.TestTenantID, "t-1").Return([]domain.UnitDraw{}, nil)
	m.allocations.On("ReceiveTransfer", mock.Anything, mock.MatchedBy(func(in service.ReceiveTransferInput) bool {
		return in.TenantID == testutil.TestTenantID && in.TransferID == "t-1"
	})).Return([]*domain.Batch{{ID: batchX, WarehouseID: &dest}}, nil)

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/transfers/t-1/pick", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/transfers/t-1/receive", map[string]any{"destination_warehouse_id": dest})
	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestAllocationHandler_WriteOff(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.allocations.On("WriteOff", mock.Anything, mock.MatchedBy(func(in service.WriteOffInput) bool {
		return in.TenantID == testutil.TestTenantID && in.BatchID == batchX && in.Reason == "broken"
	})).Return([]domain.UnitDraw{{UnitID: "u1", Quantity: decimal.NewFromInt(1)}}, nil)

	rr, env := do(t, router, http.MethodPost, "/api/v1/stock/write-offs", map[string]any{
		"batch_id": batchX,
		"quantity": "1",
		"reason":   "broken",
	})

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, 1, env.Meta.Count)
}

func TestAlertHandler_ListFilters(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	status := domain.AlertStatus("OPEN")

	m.monitor.On("ListAlerts", mock.Anything, testutil.TestTenantID, mock.MatchedBy(func(f repository.AlertFilter) bool {
		return f.Status != nil && *f.Status == status && f.Type == nil && f.Limit == 20 && f.Offset == 40
	})).Return([]*domain.Alert{{ID: "a1"}}, nil)

	rr, env := do(t, router, http.MethodGet, "/api/v1/stock/alerts?status=OPEN&limit=20&offset=40", nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, 20, env.Meta.Limit)
	assert.Equal(t, 1, env.Meta.Count)
}

func TestAlertHandler_BadLimit(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	rr, env := do(t, router, http.MethodGet, "/api/v1/stock/alerts?limit=-1", nil)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, env.Error.Details, "limit")
}

func TestAlertHandler_DismissRecordsActor(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.monitor.On("DismissAlert", mock.Anything, testutil.TestTenantID, "a1", userID).Return(&domain.Alert{ID: "a1"}, nil)

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/alerts/a1/dismiss", nil)

	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAlertHandler_RuleCRUD(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	rule := &domain.ReorderRule{ID: "r1", ItemID: itemA}

	m.monitor.On("CreateRule", mock.Anything, mock.MatchedBy(func(in service.ReorderRuleInput) bool {
		return in.TenantID == testutil.TestTenantID && in.ItemID == itemA
	})).Return(rule, nil)
	m.monitor.On("ListRules", mock.Anything, testutil.TestTenantID, true).Return([]*domain.ReorderRule{rule}, nil)
	m.monitor.On("GetRule", mock.Anything, testutil.TestTenantID, "r1").Return(rule, nil)
	m.monitor.On("UpdateRule", mock.Anything, "r1", mock.Anything).Return(rule, nil)
	m.monitor.On("DeleteRule", mock.Anything, testutil.TestTenantID, "r1").Return(nil)

	body := map[string]any{"item_id": itemA, "min_level": "5", "reorder_point": "10", "max_level": "50"}

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/reorder-rules", body)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr, _ = do(t, router, http.MethodGet, "/api/v1/stock/reorder-rules?active=true", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodGet, "/api/v1/stock/reorder-rules/r1", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodPut, "/api/v1/stock/reorder-rules/r1", body)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodDelete, "/api/v1/stock/reorder-rules/r1", nil)
	testutil.AssertStatus(t, rr, http.StatusNoContent)
}

func TestAlertHandler_ScanIsRateLimited(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{ScanRateLimit: 1})

	m.monitor.On("Scan", mock.Anything, testutil.TestTenantID).
		Return(&service.ScanReport{TenantID: testutil.TestTenantID, RulesEvaluated: 3}, nil).Once()

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/scans", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = do(t, router, http.MethodPost, "/api/v1/stock/scans", nil)
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
}

func TestPricingHandler_QuoteGroupsHoldingsByItem(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})
	consumer := domain.SaleRef("s-7")
	draws := []domain.UnitDraw{
		{UnitID: "u1", ItemID: itemA, Quantity: decimal.NewFromInt(2), UnitCost: decimal.NewFromInt(5)},
		{UnitID: "u2", ItemID: itemB, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(9)},
		{UnitID: "u3", ItemID: itemA, Quantity: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(6)},
	}

	m.allocations.On("Holdings", mock.Anything, testutil.TestTenantID, consumer).Return(draws, nil)
	m.quoter.On("Quote", mock.Anything, mock.MatchedBy(func(in pricing.QuoteInput) bool {
		return len(in.Lines) == 2 &&
			in.Lines[0].ItemID == itemA && len(in.Lines[0].Draws) == 2 && in.Lines[0].Taxable &&
			in.Lines[1].ItemID == itemB && !in.Lines[1].Taxable &&
			in.Discount.Equal(decimal.NewFromInt(3))
	})).Return(&pricing.OrderQuote{}, nil)

	rr, _ := do(t, router, http.MethodPost, "/api/v1/stock/quotes", map[string]any{
		"consumer_kind":     "sale",
		"consumer_id":       "s-7",
		"discount":          "3",
		"non_taxable_items": []string{itemB},
	})

	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestPricingHandler_QuoteRejectsNegativeDiscount(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	rr, env := do(t, router, http.MethodPost, "/api/v1/stock/quotes", map[string]any{
		"consumer_kind": "sale",
		"consumer_id":   "s-7",
		"discount":      "-1",
	})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestPricingHandler_TenantPricing(t *testing.T) {
	router, m := newRouter(t, handler.RouterOptions{})

	m.store.On("TenantPricing", mock.Anything, testutil.TestTenantID).Return(nil, nil).Once()
	rr, _ := do(t, router, http.MethodGet, "/api/v1/stock/pricing", nil)
	testutil.AssertStatus(t, rr, http.StatusNotFound)

	m.store.On("Save", mock.Anything, testutil.TestTenantID, mock.MatchedBy(func(p pricing.TenantPricing) bool {
		return p.MarkupPercent.Equal(decimal.NewFromInt(25)) && p.TaxRatePercent.Equal(decimal.NewFromInt(16))
	})).Return(nil)
	m.cache.On("Bump", mock.Anything).Return(stderrors.New("redis down"))

	rr, _ = do(t, router, http.MethodPut, "/api/v1/stock/pricing", map[string]any{
		"markup_percent":   "25",
		"tax_rate_percent": "16",
	})
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestPricingHandler_TaxRateOutOfRange(t *testing.T) {
	router, _ := newRouter(t, handler.RouterOptions{})

	rr, env := do(t, router, http.MethodPut, "/api/v1/stock/pricing", map[string]any{
		"markup_percent":   "25",
		"tax_rate_percent": "160",
	})

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, env.Error.Details, "tax_rate_percent")
}
