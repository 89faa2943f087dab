package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// Monitor classifies stock levels and expiries against reorder rules and
// keeps the alert table in step with what it finds.
type Monitor struct {
	tx          Transactor
	rules       RuleStore
	units       UnitStore
	batches     BatchStore
	alerts      AlertStore
	notifier    Notifier
	purchasing  Purchasing
	horizonDays int
	now         Clock
	logger      *logger.Logger
}

// NewMonitor creates a new monitor. notifier and purchasing may be nil.
func NewMonitor(
	tx Transactor,
	rules RuleStore,
	units UnitStore,
	batches BatchStore,
	alerts AlertStore,
	notifier Notifier,
	purchasing Purchasing,
	horizonDays int,
	log *logger.Logger,
) *Monitor {
	return &Monitor{
		tx:          tx,
		rules:       rules,
		units:       units,
		batches:     batches,
		alerts:      alerts,
		notifier:    notifier,
		purchasing:  purchasing,
		horizonDays: horizonDays,
		now:         utcNow,
		logger:      log.WithComponent("monitor"),
	}
}

// ScanReport summarises one tenant scan.
type ScanReport struct {
	TenantID       string    `json:"tenant_id"`
	ScannedAt      time.Time `json:"scanned_at"`
	RulesEvaluated int       `json:"rules_evaluated"`
	Findings       int       `json:"findings"`
	NewAlerts      int       `json:"new_alerts"`
	Resolved       int64     `json:"resolved"`
	PurchaseOrders int       `json:"purchase_orders"`
	Errors         int       `json:"errors"`
}

type finding struct {
	alert   *domain.Alert
	rule    *domain.ReorderRule
	current decimal.Decimal
}

// Scan evaluates every active rule and every batch expiring within the
// horizon for tenantID. Findings are upserted by dedupe key, so repeating a
// scan over unchanged stock leaves the same alert set. Alerts whose condition
// cleared are resolved. Failures to persist, notify or order are logged and
// counted; only failing to read the stock state fails the scan.
func (m *Monitor) Scan(ctx context.Context, tenantID string) (*ScanReport, error) {
	now := m.now()
	report := &ScanReport{TenantID: tenantID, ScannedAt: now}

	var findings []finding
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		rules, err := m.rules.List(ctx, tenantID, true)
		if err != nil {
			return fmt.Errorf("list reorder rules: %w", err)
		}
		for _, rule := range rules {
			current, err := m.units.StockLevel(ctx, tenantID, rule.ItemID, rule.WarehouseID)
			if err != nil {
				return fmt.Errorf("stock level of item %s: %w", rule.ItemID, err)
			}
			report.RulesEvaluated++
			if a := stockAlert(tenantID, rule, current); a != nil {
				findings = append(findings, finding{alert: a, rule: rule, current: current})
			}
		}

		expiring, err := m.batches.ListExpiring(ctx, tenantID, now, now.AddDate(0, 0, m.horizonDays))
		if err != nil {
			return fmt.Errorf("list expiring batches: %w", err)
		}
		for _, b := range expiring {
			if b.IsExpiredAt(now) {
				continue
			}
			findings = append(findings, finding{alert: expiryAlert(tenantID, b, now)})
		}
		return nil
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	report.Findings = len(findings)

	keep := make([]string, 0, len(findings))
	for _, f := range findings {
		keep = append(keep, f.alert.DedupeKey)
		inserted, err := m.persist(ctx, tenantID, f.alert)
		if err != nil {
			report.Errors++
			m.logger.Error().Err(err).
				Str("tenant_id", tenantID).
				Str("dedupe_key", f.alert.DedupeKey).
				Msg("failed to persist alert")
			continue
		}
		if !inserted {
			continue
		}
		report.NewAlerts++
		m.notify(ctx, f.alert)

		if req, ok := m.reorderRequest(f, now); ok {
			if err := m.purchasing.CreatePurchaseOrder(ctx, req); err != nil {
				report.Errors++
				m.logger.Error().Err(err).
					Str("tenant_id", tenantID).
					Str("item_id", req.ItemID).
					Msg("failed to create purchase order")
				continue
			}
			report.PurchaseOrders++
		}
	}

	err = m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		n, err := m.alerts.ResolveExcept(ctx, tenantID, keep, now)
		report.Resolved = n
		return err
	})
	if err != nil {
		report.Errors++
		m.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to resolve cleared alerts")
	}

	m.logger.Info().
		Str("tenant_id", tenantID).
		Int("rules", report.RulesEvaluated).
		Int("findings", report.Findings).
		Int("new_alerts", report.NewAlerts).
		Int64("resolved", report.Resolved).
		Int("purchase_orders", report.PurchaseOrders).
		Int("errors", report.Errors).
		Msg("stock scan completed")
	return report, nil
}

func (m *Monitor) persist(ctx context.Context, tenantID string, a *domain.Alert) (bool, error) {
	var inserted bool
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		inserted, err = m.alerts.Upsert(ctx, a)
		return err
	})
	return inserted, err
}

func (m *Monitor) notify(ctx context.Context, a *domain.Alert) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.AlertRaised(ctx, a); err != nil {
		m.logger.Error().Err(err).
			Str("tenant_id", a.TenantID).
			Str("alert_id", a.ID).
			Msg("failed to send alert notification")
	}
}

// reorderRequest builds a purchase order for a fresh low-stock or
// reorder-point alert on an auto-reorder rule with a preferred supplier.
func (m *Monitor) reorderRequest(f finding, now time.Time) (PurchaseOrderRequest, bool) {
	rule := f.rule
	if m.purchasing == nil || rule == nil || !rule.AutoReorder || rule.PreferredSupplierID == nil {
		return PurchaseOrderRequest{}, false
	}
	if f.alert.Type != domain.AlertLowStock && f.alert.Type != domain.AlertReorderPoint {
		return PurchaseOrderRequest{}, false
	}

	qty := rule.ReorderQuantity
	if !qty.IsPositive() && rule.MaxLevel.IsPositive() {
		qty = rule.MaxLevel.Sub(f.current)
	}
	if !qty.IsPositive() {
		m.logger.Warn().
			Str("tenant_id", rule.TenantID).
			Str("rule_id", rule.ID).
			Msg("auto-reorder rule has no reorder quantity, skipping purchase order")
		return PurchaseOrderRequest{}, false
	}

	return PurchaseOrderRequest{
		TenantID:         rule.TenantID,
		ItemID:           rule.ItemID,
		WarehouseID:      rule.WarehouseID,
		SupplierID:       *rule.PreferredSupplierID,
		Quantity:         qty,
		ExpectedDelivery: now.AddDate(0, 0, rule.LeadTimeDays),
		AlertID:          f.alert.ID,
	}, true
}

func stockAlert(tenantID string, rule *domain.ReorderRule, current decimal.Decimal) *domain.Alert {
	typ, severity, threshold, ok := rule.Classify(current)
	if !ok {
		return nil
	}

	var msg string
	switch typ {
	case domain.AlertLowStock:
		msg = fmt.Sprintf("stock of item %s is %s, at or below minimum level %s", rule.ItemID, current, threshold)
	case domain.AlertReorderPoint:
		msg = fmt.Sprintf("stock of item %s is %s, at or below reorder point %s", rule.ItemID, current, threshold)
	default:
		msg = fmt.Sprintf("stock of item %s is %s, at or above maximum level %s", rule.ItemID, current, threshold)
	}

	cur, thr := current, threshold
	return &domain.Alert{
		TenantID:     tenantID,
		Type:         typ,
		Severity:     severity,
		ItemID:       rule.ItemID,
		WarehouseID:  rule.WarehouseID,
		Message:      msg,
		CurrentStock: &cur,
		Threshold:    &thr,
		DedupeKey:    domain.AlertDedupeKey(typ, rule.ItemID, rule.WarehouseID, nil),
	}
}

func expiryAlert(tenantID string, b *repository.ExpiringBatch, now time.Time) *domain.Alert {
	days := domain.DaysUntilExpiry(*b.ExpiryDate, now)
	remaining := b.Remaining
	batchID := b.ID
	return &domain.Alert{
		TenantID:        tenantID,
		Type:            domain.AlertExpiringSoon,
		Severity:        domain.ExpirySeverity(days),
		ItemID:          b.ItemID,
		WarehouseID:     b.WarehouseID,
		BatchID:         &batchID,
		Message:         fmt.Sprintf("batch %s of item %s expires in %d days with %s on hand", b.ID, b.ItemID, days, remaining),
		CurrentStock:    &remaining,
		ExpiryDate:      b.ExpiryDate,
		DaysUntilExpiry: &days,
		DedupeKey:       domain.AlertDedupeKey(domain.AlertExpiringSoon, b.ItemID, b.WarehouseID, &batchID),
	}
}

// ListAlerts lists the alerts of a tenant.
func (m *Monitor) ListAlerts(ctx context.Context, tenantID string, f repository.AlertFilter) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		alerts, err = m.alerts.List(ctx, tenantID, f)
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return alerts, nil
}

// DismissAlert hides an open alert until its condition clears. The next scan
// keeps it dismissed rather than raising it again.
func (m *Monitor) DismissAlert(ctx context.Context, tenantID, alertID, userID string) (*domain.Alert, error) {
	if userID == "" {
		return nil, errors.Validation(map[string]string{"user_id": "this field is required"})
	}
	var alert *domain.Alert
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		alert, err = m.alerts.Dismiss(ctx, tenantID, alertID, userID, m.now())
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	m.logger.Info().Str("tenant_id", tenantID).Str("alert_id", alertID).Str("user_id", userID).Msg("alert dismissed")
	return alert, nil
}

// ReorderRuleInput creates or replaces a reorder rule.
type ReorderRuleInput struct {
	TenantID            string          `json:"tenant_id" validate:"required,uuid"`
	ItemID              string          `json:"item_id" validate:"required,uuid"`
	WarehouseID         *string         `json:"warehouse_id,omitempty" validate:"omitempty,uuid"`
	MinLevel            decimal.Decimal `json:"min_level" validate:"gte=0"`
	MaxLevel            decimal.Decimal `json:"max_level" validate:"gte=0"`
	ReorderPoint        decimal.Decimal `json:"reorder_point" validate:"gte=0"`
	ReorderQuantity     decimal.Decimal `json:"reorder_quantity" validate:"gte=0"`
	AutoReorder         bool            `json:"auto_reorder"`
	PreferredSupplierID *string         `json:"preferred_supplier_id,omitempty" validate:"omitempty,uuid"`
	LeadTimeDays        int             `json:"lead_time_days" validate:"gte=0,lte=365"`
	IsActive            *bool           `json:"is_active,omitempty"`
}

func (in ReorderRuleInput) validate() error {
	if err := httputil.Validate(in); err != nil {
		return err
	}
	details := map[string]string{}
	if in.ReorderPoint.LessThan(in.MinLevel) {
		details["reorder_point"] = "must be at least min_level"
	}
	if in.MaxLevel.IsPositive() && in.MaxLevel.LessThan(in.ReorderPoint) {
		details["max_level"] = "must be zero or at least reorder_point"
	}
	if in.AutoReorder && in.PreferredSupplierID == nil {
		details["preferred_supplier_id"] = "is required when auto_reorder is set"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func (in ReorderRuleInput) apply(rule *domain.ReorderRule) {
	rule.MinLevel = in.MinLevel
	rule.MaxLevel = in.MaxLevel
	rule.ReorderPoint = in.ReorderPoint
	rule.ReorderQuantity = in.ReorderQuantity
	rule.AutoReorder = in.AutoReorder
	rule.PreferredSupplierID = in.PreferredSupplierID
	rule.LeadTimeDays = in.LeadTimeDays
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
}

// CreateRule stores a new reorder rule. Items carry at most one rule per
// warehouse.
func (m *Monitor) CreateRule(ctx context.Context, in ReorderRuleInput) (*domain.ReorderRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	rule := &domain.ReorderRule{
		TenantID:    in.TenantID,
		ItemID:      in.ItemID,
		WarehouseID: in.WarehouseID,
		IsActive:    true,
	}
	in.apply(rule)

	err := m.tx.WithTenantRLS(ctx, in.TenantID, func(ctx context.Context) error {
		return m.rules.Create(ctx, rule)
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return rule, nil
}

// UpdateRule replaces the thresholds of an existing rule. Item and warehouse
// are fixed once created.
func (m *Monitor) UpdateRule(ctx context.Context, ruleID string, in ReorderRuleInput) (*domain.ReorderRule, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var rule *domain.ReorderRule
	err := m.tx.WithTenantRLS(ctx, in.TenantID, func(ctx context.Context) error {
		var err error
		rule, err = m.rules.GetByID(ctx, in.TenantID, ruleID)
		if err != nil {
			return err
		}
		in.apply(rule)
		return m.rules.Update(ctx, rule)
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return rule, nil
}

// GetRule returns one reorder rule.
func (m *Monitor) GetRule(ctx context.Context, tenantID, ruleID string) (*domain.ReorderRule, error) {
	var rule *domain.ReorderRule
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		rule, err = m.rules.GetByID(ctx, tenantID, ruleID)
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return rule, nil
}

// ListRules lists the reorder rules of a tenant.
func (m *Monitor) ListRules(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error) {
	var rules []*domain.ReorderRule
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		var err error
		rules, err = m.rules.List(ctx, tenantID, activeOnly)
		return err
	})
	if err != nil {
		return nil, database.MapError(err)
	}
	return rules, nil
}

// DeleteRule removes a reorder rule. Its open alerts resolve on the next scan.
func (m *Monitor) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	err := m.tx.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		return m.rules.Delete(ctx, tenantID, ruleID)
	})
	return database.MapError(err)
}
