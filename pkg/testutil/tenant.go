package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medflow/medflow-stock/pkg/tenant"
)

// TestTenant is a tenant created for one test.
type TestTenant struct {
	ID string
}

// TenantManager hands out tenant IDs and deletes their rows afterwards.
// Tenants share the schema and are isolated by tenant_id.
type TenantManager struct {
	db      *sqlx.DB
	tenants map[string]TestTenant
	mu      sync.Mutex
}

// tenantTables lists stock tables in delete order.
var tenantTables = []string{
	"stock_movements",
	"stock_alerts",
	"stock_reorder_rules",
	"stock_tenant_pricing",
	"stock_units",
	"stock_batches",
}

// NewTenantManager creates a new tenant manager for tests
func NewTenantManager(db *sqlx.DB) *TenantManager {
	return &TenantManager{
		db:      db,
		tenants: make(map[string]TestTenant),
	}
}

// CreateTenant registers a new tenant ID.
func (tm *TenantManager) CreateTenant() *TestTenant {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t := TestTenant{ID: uuid.New().String()}
	tm.tenants[t.ID] = t
	return &t
}

// DropTenant deletes every row owned by t.
func (tm *TenantManager) DropTenant(ctx context.Context, t *TestTenant) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.purge(ctx, t.ID); err != nil {
		return err
	}
	delete(tm.tenants, t.ID)
	return nil
}

// Cleanup purges all tenants still tracked.
func (tm *TenantManager) Cleanup(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var lastErr error
	for id := range tm.tenants {
		if err := tm.purge(ctx, id); err != nil {
			lastErr = err
		}
	}
	tm.tenants = make(map[string]TestTenant)
	return lastErr
}

func (tm *TenantManager) purge(ctx context.Context, tenantID string) error {
	for _, table := range tenantTables {
		if _, err := tm.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1", table), tenantID); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return nil
}

// WithTestTenant creates a context with the tenant ID set.
func WithTestTenant(ctx context.Context, t *TestTenant) context.Context {
	return tenant.WithTenantID(ctx, t.ID)
}

// TestTenantID is the tenant used by unit tests that need a fixed tenant.
const TestTenantID = "00000000-0000-0000-0000-00000000000a"
