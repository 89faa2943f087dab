package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/testutil"
)

const supplier = "5e5e5e5e-5e5e-4e5e-8e5e-5e5e5e5e5e5e"

func newTestMonitor(t *testing.T) (*Monitor, *memStore, *recorder) {
	t.Helper()
	store := newMemStore()
	rec := &recorder{}
	m := NewMonitor(store, store.ruleStore(), store.unitStore(), store.batchStore(), store.alertStore(), rec, rec, 30, logger.Nop())
	m.now = func() time.Time { return fixedNow }
	return m, store, rec
}

// seedMonitored leaves item A at its reorder point with auto reorder on, and
// item B below minimum with its only batch four days from expiry.
func seedMonitored(store *memStore) {
	f := testutil.NewFixtureFactory()
	store.seedBatch(f.Batch(testTenant, itemA, testutil.WithQuantity(15)))
	store.seedBatch(f.Batch(testTenant, itemB, testutil.WithQuantity(5), testutil.WithExpiry(date(2025, 3, 5))))

	ruleA := f.ReorderRule(testTenant, itemA, testutil.WithAutoReorder(supplier))
	ruleB := f.ReorderRule(testTenant, itemB)
	store.rules[ruleA.ID] = ruleA
	store.rules[ruleB.ID] = ruleB
}

func alertsByType(t *testing.T, m *Monitor) map[domain.AlertType]*domain.Alert {
	t.Helper()
	alerts, err := m.ListAlerts(context.Background(), testTenant, repository.AlertFilter{})
	require.NoError(t, err)
	out := map[domain.AlertType]*domain.Alert{}
	for _, a := range alerts {
		out[a.Type] = a
	}
	return out
}

func TestMonitor_ScanRaisesAlertsAndReorders(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	seedMonitored(store)

	report, err := m.Scan(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RulesEvaluated)
	assert.Equal(t, 3, report.Findings)
	assert.Equal(t, 3, report.NewAlerts)
	assert.Equal(t, 1, report.PurchaseOrders)
	assert.Zero(t, report.Errors)
	assert.Len(t, rec.raised, 3)

	alerts := alertsByType(t, m)
	require.Len(t, alerts, 3)
	assert.Equal(t, domain.SeverityMedium, alerts[domain.AlertReorderPoint].Severity)
	assert.Equal(t, itemA, alerts[domain.AlertReorderPoint].ItemID)
	assert.Equal(t, domain.SeverityHigh, alerts[domain.AlertLowStock].Severity)
	assert.Equal(t, itemB, alerts[domain.AlertLowStock].ItemID)

	expiring := alerts[domain.AlertExpiringSoon]
	assert.Equal(t, domain.SeverityCritical, expiring.Severity)
	require.NotNil(t, expiring.DaysUntilExpiry)
	assert.Equal(t, 4, *expiring.DaysUntilExpiry)
	assert.True(t, expiring.CurrentStock.Equal(dec("5")))

	require.Len(t, rec.orders, 1)
	po := rec.orders[0]
	assert.Equal(t, itemA, po.ItemID)
	assert.Equal(t, supplier, po.SupplierID)
	assert.True(t, po.Quantity.Equal(dec("50")))
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), po.ExpectedDelivery)
	assert.Equal(t, alerts[domain.AlertReorderPoint].ID, po.AlertID)
}

func TestMonitor_RepeatedScanIsIdempotent(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	seedMonitored(store)
	ctx := context.Background()

	_, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	first := alertsByType(t, m)

	report, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Findings)
	assert.Zero(t, report.NewAlerts)
	assert.Zero(t, report.PurchaseOrders)
	assert.Zero(t, report.Resolved)

	second := alertsByType(t, m)
	require.Len(t, second, 3)
	for typ, a := range first {
		assert.Equal(t, a.ID, second[typ].ID)
		assert.Equal(t, domain.AlertOpen, second[typ].Status)
	}
	assert.Len(t, rec.raised, 3, "no second notification")
	assert.Len(t, rec.orders, 1, "no second purchase order")
}

func TestMonitor_ResolvesClearedAlerts(t *testing.T) {
	m, store, _ := newTestMonitor(t)
	seedMonitored(store)
	ctx := context.Background()

	_, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)

	store.seedBatch(testutil.NewFixtureFactory().Batch(testTenant, itemA, testutil.WithQuantity(30)))
	report, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Resolved)

	resolved := alertsByType(t, m)[domain.AlertReorderPoint]
	assert.Equal(t, domain.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, fixedNow, *resolved.ResolvedAt)
}

func TestMonitor_DismissedAlertStaysDismissed(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	seedMonitored(store)
	ctx := context.Background()

	_, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	low := alertsByType(t, m)[domain.AlertLowStock]

	_, err = m.DismissAlert(ctx, testTenant, low.ID, "")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	dismissed, err := m.DismissAlert(ctx, testTenant, low.ID, "user-7")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertDismissed, dismissed.Status)

	_, err = m.DismissAlert(ctx, testTenant, low.ID, "user-7")
	assert.True(t, errors.Is(err, errors.ErrStateTransition))

	report, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	assert.Zero(t, report.NewAlerts)
	assert.Equal(t, domain.AlertDismissed, alertsByType(t, m)[domain.AlertLowStock].Status)
	assert.Len(t, rec.raised, 3)
}

func TestMonitor_PersistFailureIsCountedAndKeepsAlert(t *testing.T) {
	m, store, _ := newTestMonitor(t)
	seedMonitored(store)
	ctx := context.Background()

	_, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)

	key := domain.AlertDedupeKey(domain.AlertReorderPoint, itemA, nil, nil)
	store.failUpserts[key] = fmt.Errorf("connection reset")

	report, err := m.Scan(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Zero(t, report.Resolved)
	assert.Equal(t, domain.AlertOpen, alertsByType(t, m)[domain.AlertReorderPoint].Status)
}

func TestMonitor_NotifierFailureDoesNotFailScan(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	seedMonitored(store)
	rec.notifyErr = fmt.Errorf("broker unavailable")

	report, err := m.Scan(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 3, report.NewAlerts)
	assert.Equal(t, 1, report.PurchaseOrders)
	assert.Zero(t, report.Errors)
}

func TestMonitor_ReorderQuantityFallsBackToMaxLevel(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	f := testutil.NewFixtureFactory()
	store.seedBatch(f.Batch(testTenant, itemA, testutil.WithQuantity(15)))
	rule := f.ReorderRule(testTenant, itemA, testutil.WithAutoReorder(supplier))
	rule.ReorderQuantity = dec("0")
	store.rules[rule.ID] = rule

	_, err := m.Scan(context.Background(), testTenant)
	require.NoError(t, err)
	require.Len(t, rec.orders, 1)
	assert.True(t, rec.orders[0].Quantity.Equal(dec("85")))
}

func TestMonitor_NoReorderWithoutQuantity(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	f := testutil.NewFixtureFactory()
	store.seedBatch(f.Batch(testTenant, itemA, testutil.WithQuantity(15)))
	rule := f.ReorderRule(testTenant, itemA, testutil.WithAutoReorder(supplier))
	rule.ReorderQuantity = dec("0")
	rule.MaxLevel = dec("0")
	store.rules[rule.ID] = rule

	report, err := m.Scan(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NewAlerts)
	assert.Empty(t, rec.orders)
}

func TestMonitor_InactiveRulesAreSkipped(t *testing.T) {
	m, store, rec := newTestMonitor(t)
	f := testutil.NewFixtureFactory()
	store.seedBatch(f.Batch(testTenant, itemA, testutil.WithQuantity(1)))
	rule := f.ReorderRule(testTenant, itemA)
	rule.IsActive = false
	store.rules[rule.ID] = rule

	report, err := m.Scan(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Zero(t, report.RulesEvaluated)
	assert.Zero(t, report.Findings)
	assert.Empty(t, rec.raised)
}

func ruleInput() ReorderRuleInput {
	return ReorderRuleInput{
		TenantID:        testTenant,
		ItemID:          itemA,
		MinLevel:        dec("5"),
		ReorderPoint:    dec("10"),
		MaxLevel:        dec("40"),
		ReorderQuantity: dec("20"),
		LeadTimeDays:    3,
	}
}

func TestMonitor_RuleValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReorderRuleInput)
		field  string
	}{
		{"reorder point below minimum", func(in *ReorderRuleInput) { in.ReorderPoint = dec("4") }, "reorder_point"},
		{"maximum below reorder point", func(in *ReorderRuleInput) { in.MaxLevel = dec("8") }, "max_level"},
		{"auto reorder without supplier", func(in *ReorderRuleInput) { in.AutoReorder = true }, "preferred_supplier_id"},
		{"bad item id", func(in *ReorderRuleInput) { in.ItemID = "widget" }, "item_id"},
		{"negative minimum", func(in *ReorderRuleInput) { in.MinLevel = dec("-1") }, "min_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, _ := newTestMonitor(t)
			in := ruleInput()
			tt.mutate(&in)

			_, err := m.CreateRule(context.Background(), in)
			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
			assert.Contains(t, appErr.Details, tt.field)
			assert.Empty(t, store.rules)
		})
	}
}

func TestMonitor_RuleLifecycle(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	rule, err := m.CreateRule(ctx, ruleInput())
	require.NoError(t, err)
	assert.True(t, rule.IsActive)

	_, err = m.CreateRule(ctx, ruleInput())
	assert.True(t, errors.Is(err, errors.ErrConflict))

	in := ruleInput()
	in.ReorderPoint = dec("12")
	in.IsActive = testutil.PtrBool(false)
	updated, err := m.UpdateRule(ctx, rule.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.ReorderPoint.Equal(dec("12")))
	assert.False(t, updated.IsActive)

	active, err := m.ListRules(ctx, testTenant, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := m.ListRules(ctx, testTenant, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	got, err := m.GetRule(ctx, testTenant, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)

	require.NoError(t, m.DeleteRule(ctx, testTenant, rule.ID))
	_, err = m.GetRule(ctx, testTenant, rule.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
