package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/pkg/errors"
)

// memStore is an in-memory ledger. WithTenantRLS snapshots the whole store
// and restores it when fn fails, which mirrors a rolled back transaction.
type memStore struct {
	txMu sync.Mutex

	seq       int64
	batches   map[string]domain.Batch
	units     map[string]domain.Unit
	movements []domain.Movement
	rules     map[string]domain.ReorderRule
	alerts    map[string]domain.Alert

	lockTimeouts []time.Duration
	failUpdates  map[string]error
	failUpserts  map[string]error
}

type inTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		batches:     map[string]domain.Batch{},
		units:       map[string]domain.Unit{},
		rules:       map[string]domain.ReorderRule{},
		alerts:      map[string]domain.Alert{},
		failUpdates: map[string]error{},
		failUpserts: map[string]error{},
	}
}

func (s *memStore) WithTenantRLS(ctx context.Context, tenantID string, fn func(context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, tenantID)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if ctx.Value(inTxKey{}) == nil {
		return fmt.Errorf("no transaction in context")
	}
	s.lockTimeouts = append(s.lockTimeouts, d)
	return nil
}

type memSnapshot struct {
	seq       int64
	batches   map[string]domain.Batch
	units     map[string]domain.Unit
	movements []domain.Movement
	rules     map[string]domain.ReorderRule
	alerts    map[string]domain.Alert
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		seq:       s.seq,
		batches:   make(map[string]domain.Batch, len(s.batches)),
		units:     make(map[string]domain.Unit, len(s.units)),
		movements: append([]domain.Movement(nil), s.movements...),
		rules:     make(map[string]domain.ReorderRule, len(s.rules)),
		alerts:    make(map[string]domain.Alert, len(s.alerts)),
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.units {
		snap.units[k] = v
	}
	for k, v := range s.rules {
		snap.rules[k] = v
	}
	for k, v := range s.alerts {
		snap.alerts[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.seq = snap.seq
	s.batches = snap.batches
	s.units = snap.units
	s.movements = snap.movements
	s.rules = snap.rules
	s.alerts = snap.alerts
}

// seedBatch stores b with a single AVAILABLE unit, bypassing the registry.
func (s *memStore) seedBatch(b domain.Batch) domain.Batch {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	s.batches[b.ID] = b
	u := domain.NewUnit(&b, b.Quantity)
	s.seq++
	u.Seq = s.seq
	s.units[u.ID] = u
	return b
}

func (s *memStore) sortedUnits(keep func(*domain.Unit) bool) []domain.Unit {
	out := make([]domain.Unit, 0)
	for _, u := range s.units {
		if keep(&u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *memStore) unitsOfBatch(batchID string) []domain.Unit {
	return s.sortedUnits(func(u *domain.Unit) bool { return u.BatchID == batchID })
}

func (s *memStore) available(itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, u := range s.units {
		if u.ItemID == itemID && u.Status == domain.StatusAvailable {
			total = total.Add(u.QuantityAvailable)
		}
	}
	return total
}

func (s *memStore) movementsOf(action domain.MovementAction) []domain.Movement {
	out := make([]domain.Movement, 0)
	for _, m := range s.movements {
		if m.Action == action {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) batchStore() memBatches      { return memBatches{s} }
func (s *memStore) unitStore() memUnits         { return memUnits{s} }
func (s *memStore) movementStore() memMovements { return memMovements{s} }
func (s *memStore) ruleStore() memRules         { return memRules{s} }
func (s *memStore) alertStore() memAlerts       { return memAlerts{s} }

type memBatches struct{ s *memStore }

func (m memBatches) Create(_ context.Context, b *domain.Batch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	m.s.batches[b.ID] = *b
	return nil
}

func (m memBatches) GetByID(_ context.Context, tenantID, id string) (*domain.Batch, error) {
	b, ok := m.s.batches[id]
	if !ok || b.TenantID != tenantID {
		return nil, errors.NotFound("batch")
	}
	return &b, nil
}

func (m memBatches) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Batch, error) {
	return m.GetByID(ctx, tenantID, id)
}

func (m memBatches) ListByItem(_ context.Context, tenantID, itemID string, warehouseID *string) ([]*domain.Batch, error) {
	out := []*domain.Batch{}
	for _, b := range m.s.batches {
		b := b
		if b.TenantID == tenantID && b.ItemID == itemID && sameWarehouse(warehouseID, b.WarehouseID) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (m memBatches) UpdateQuantity(_ context.Context, tenantID, id string, qty decimal.Decimal) error {
	b, ok := m.s.batches[id]
	if !ok || b.TenantID != tenantID {
		return errors.NotFound("batch")
	}
	b.Quantity = qty
	m.s.batches[id] = b
	return nil
}

func (m memBatches) Delete(_ context.Context, tenantID, id string) error {
	b, ok := m.s.batches[id]
	if !ok || b.TenantID != tenantID {
		return errors.NotFound("batch")
	}
	delete(m.s.batches, id)
	for uid, u := range m.s.units {
		if u.BatchID == id {
			delete(m.s.units, uid)
		}
	}
	return nil
}

func (m memBatches) ListExpiring(_ context.Context, tenantID string, from, until time.Time) ([]*repository.ExpiringBatch, error) {
	fromDay := from.Truncate(24 * time.Hour)
	out := []*repository.ExpiringBatch{}
	for _, b := range m.s.batches {
		if b.TenantID != tenantID || b.ExpiryDate == nil {
			continue
		}
		if b.ExpiryDate.Before(fromDay) || b.ExpiryDate.After(until) {
			continue
		}
		remaining := decimal.Zero
		for _, u := range m.s.units {
			if u.BatchID == b.ID && u.Status == domain.StatusAvailable {
				remaining = remaining.Add(u.QuantityAvailable)
			}
		}
		if remaining.IsPositive() {
			out = append(out, &repository.ExpiringBatch{Batch: b, Remaining: remaining})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(*out[j].ExpiryDate) })
	return out, nil
}

func sameWarehouse(filter, wh *string) bool {
	return filter == nil || (wh != nil && *wh == *filter)
}

type memUnits struct{ s *memStore }

func (m memUnits) Create(_ context.Context, u *domain.Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.s.seq++
	u.Seq = m.s.seq
	m.s.units[u.ID] = *u
	return nil
}

func (m memUnits) Update(_ context.Context, u *domain.Unit, prevStatus domain.UnitStatus, prevAvailable decimal.Decimal) error {
	if err, ok := m.s.failUpdates[u.ID]; ok {
		return err
	}
	stored, ok := m.s.units[u.ID]
	if !ok || stored.Status != prevStatus || !stored.QuantityAvailable.Equal(prevAvailable) {
		return errors.ConcurrencyConflict(fmt.Sprintf("unit %s changed concurrently", u.ID))
	}
	if err := u.Validate(); err != nil {
		return err
	}
	m.s.units[u.ID] = *u
	return nil
}

func (m memUnits) availableOf(tenantID string, itemIDs []string, warehouseID *string) []domain.Unit {
	items := map[string]bool{}
	for _, id := range itemIDs {
		items[id] = true
	}
	return m.s.sortedUnits(func(u *domain.Unit) bool {
		return u.TenantID == tenantID && items[u.ItemID] && u.Status == domain.StatusAvailable &&
			sameWarehouse(warehouseID, u.WarehouseID)
	})
}

func (m memUnits) ListAvailable(_ context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error) {
	return m.availableOf(tenantID, itemIDs, warehouseID), nil
}

func (m memUnits) LockAvailable(_ context.Context, tenantID string, itemIDs []string, warehouseID *string) ([]domain.Unit, error) {
	return m.availableOf(tenantID, itemIDs, warehouseID), nil
}

func (m memUnits) LockAvailableByBatch(_ context.Context, tenantID, batchID string) ([]domain.Unit, error) {
	return m.s.sortedUnits(func(u *domain.Unit) bool {
		return u.TenantID == tenantID && u.BatchID == batchID && u.Status == domain.StatusAvailable
	}), nil
}

func (m memUnits) LockByConsumer(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error) {
	return m.ListByConsumer(ctx, tenantID, consumer)
}

func (m memUnits) ListByConsumer(_ context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.Unit, error) {
	return m.s.sortedUnits(func(u *domain.Unit) bool {
		return u.TenantID == tenantID && !u.Consumer.IsZero() && u.Consumer == consumer
	}), nil
}

func (m memUnits) ListByBatch(_ context.Context, tenantID, batchID string) ([]domain.Unit, error) {
	return m.s.sortedUnits(func(u *domain.Unit) bool { return u.TenantID == tenantID && u.BatchID == batchID }), nil
}

func (m memUnits) StockLevel(_ context.Context, tenantID, itemID string, warehouseID *string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, u := range m.s.units {
		if u.TenantID != tenantID || u.ItemID != itemID || !sameWarehouse(warehouseID, u.WarehouseID) {
			continue
		}
		switch u.Status {
		case domain.StatusAvailable:
			total = total.Add(u.QuantityAvailable)
		case domain.StatusReserved:
			total = total.Add(u.DrawnQuantity)
		}
	}
	return total, nil
}

type memMovements struct{ s *memStore }

func (m memMovements) Create(_ context.Context, mv *domain.Movement) error {
	if mv.ID == "" {
		mv.ID = uuid.New().String()
	}
	m.s.movements = append(m.s.movements, *mv)
	return nil
}

func (m memMovements) ListByBatch(_ context.Context, tenantID, batchID string) ([]domain.Movement, error) {
	out := []domain.Movement{}
	for _, mv := range m.s.movements {
		if mv.TenantID == tenantID && mv.BatchID == batchID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m memMovements) HasActivity(_ context.Context, tenantID, batchID string) (bool, error) {
	for _, mv := range m.s.movements {
		if mv.TenantID != tenantID || mv.BatchID != batchID {
			continue
		}
		switch mv.Action {
		case domain.MovementRegister, domain.MovementAdjustUp, domain.MovementAdjustDown:
		default:
			return true, nil
		}
	}
	return false, nil
}

type memRules struct{ s *memStore }

func (m memRules) Create(_ context.Context, rule *domain.ReorderRule) error {
	for _, r := range m.s.rules {
		if r.TenantID == rule.TenantID && r.ItemID == rule.ItemID && derefOr(r.WarehouseID, "") == derefOr(rule.WarehouseID, "") {
			return errors.Conflict("reorder rule already exists for this item")
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	m.s.rules[rule.ID] = *rule
	return nil
}

func (m memRules) Update(_ context.Context, rule *domain.ReorderRule) error {
	if _, ok := m.s.rules[rule.ID]; !ok {
		return errors.NotFound("reorder rule")
	}
	m.s.rules[rule.ID] = *rule
	return nil
}

func (m memRules) GetByID(_ context.Context, tenantID, id string) (*domain.ReorderRule, error) {
	r, ok := m.s.rules[id]
	if !ok || r.TenantID != tenantID {
		return nil, errors.NotFound("reorder rule")
	}
	return &r, nil
}

func (m memRules) List(_ context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error) {
	out := []*domain.ReorderRule{}
	for _, r := range m.s.rules {
		r := r
		if r.TenantID == tenantID && (!activeOnly || r.IsActive) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m memRules) Delete(_ context.Context, tenantID, id string) error {
	r, ok := m.s.rules[id]
	if !ok || r.TenantID != tenantID {
		return errors.NotFound("reorder rule")
	}
	delete(m.s.rules, id)
	return nil
}

type memAlerts struct{ s *memStore }

func (m memAlerts) Upsert(_ context.Context, a *domain.Alert) (bool, error) {
	if a.DedupeKey == "" {
		a.DedupeKey = domain.AlertDedupeKey(a.Type, a.ItemID, a.WarehouseID, a.BatchID)
	}
	if err, ok := m.s.failUpserts[a.DedupeKey]; ok {
		return false, err
	}
	for id, existing := range m.s.alerts {
		if existing.TenantID == a.TenantID && existing.DedupeKey == a.DedupeKey &&
			(existing.Status == domain.AlertOpen || existing.Status == domain.AlertDismissed) {
			existing.Severity = a.Severity
			existing.Message = a.Message
			existing.CurrentStock = a.CurrentStock
			existing.Threshold = a.Threshold
			existing.DaysUntilExpiry = a.DaysUntilExpiry
			m.s.alerts[id] = existing
			a.ID = existing.ID
			a.Status = existing.Status
			return false, nil
		}
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Status = domain.AlertOpen
	m.s.alerts[a.ID] = *a
	return true, nil
}

func (m memAlerts) ResolveExcept(_ context.Context, tenantID string, keep []string, at time.Time) (int64, error) {
	kept := map[string]bool{}
	for _, k := range keep {
		kept[k] = true
	}
	var n int64
	for id, a := range m.s.alerts {
		if a.TenantID != tenantID || kept[a.DedupeKey] || a.Status == domain.AlertResolved {
			continue
		}
		a.Status = domain.AlertResolved
		a.ResolvedAt = &at
		m.s.alerts[id] = a
		n++
	}
	return n, nil
}

func (m memAlerts) List(_ context.Context, tenantID string, f repository.AlertFilter) ([]*domain.Alert, error) {
	out := []*domain.Alert{}
	for _, a := range m.s.alerts {
		a := a
		if a.TenantID != tenantID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupeKey < out[j].DedupeKey })
	return out, nil
}

func (m memAlerts) Dismiss(_ context.Context, tenantID, id, userID string, at time.Time) (*domain.Alert, error) {
	a, ok := m.s.alerts[id]
	if !ok || a.TenantID != tenantID {
		return nil, errors.NotFound("alert")
	}
	if a.Status != domain.AlertOpen {
		return nil, errors.StateTransition("alert is " + string(a.Status) + ", only open alerts can be dismissed")
	}
	a.Status = domain.AlertDismissed
	a.DismissedBy = &userID
	a.DismissedAt = &at
	m.s.alerts[id] = a
	return &a, nil
}

// recorder captures everything the services hand to their collaborators.
type recorder struct {
	mu          sync.Mutex
	registered  []*domain.Batch
	adjusted    []*domain.Batch
	allocations []AllocationChange
	raised      []*domain.Alert
	orders      []PurchaseOrderRequest
	notifyErr   error
}

func (r *recorder) BatchRegistered(_ context.Context, b *domain.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, b)
}

func (r *recorder) BatchAdjusted(_ context.Context, b *domain.Batch, _ decimal.Decimal, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjusted = append(r.adjusted, b)
}

func (r *recorder) Allocation(_ context.Context, change AllocationChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocations = append(r.allocations, change)
}

func (r *recorder) AlertRaised(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raised = append(r.raised, a)
	return r.notifyErr
}

func (r *recorder) CreatePurchaseOrder(_ context.Context, req PurchaseOrderRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, req)
	return nil
}
