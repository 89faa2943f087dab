package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/errors"
)

const ruleColumns = `id, tenant_id, item_id, warehouse_id, min_level, max_level, reorder_point,
	reorder_quantity, auto_reorder, preferred_supplier_id, lead_time_days, is_active,
	created_at, updated_at`

// ReorderRuleRepository handles reorder rule persistence
type ReorderRuleRepository struct {
	db *database.DB
}

// NewReorderRuleRepository creates a new reorder rule repository
func NewReorderRuleRepository(db *database.DB) *ReorderRuleRepository {
	return &ReorderRuleRepository{db: db}
}

// Create inserts a rule. A second rule for the same item and warehouse is a
// unique violation.
func (r *ReorderRuleRepository) Create(ctx context.Context, rule *domain.ReorderRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stock_reorder_rules (
			id, tenant_id, item_id, warehouse_id, min_level, max_level, reorder_point,
			reorder_quantity, auto_reorder, preferred_supplier_id, lead_time_days, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return r.db.Conn(ctx).QueryRowxContext(ctx, query,
		rule.ID, rule.TenantID, rule.ItemID, rule.WarehouseID, rule.MinLevel, rule.MaxLevel,
		rule.ReorderPoint, rule.ReorderQuantity, rule.AutoReorder, rule.PreferredSupplierID,
		rule.LeadTimeDays, rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

// Update updates the thresholds and reorder settings of a rule
func (r *ReorderRuleRepository) Update(ctx context.Context, rule *domain.ReorderRule) error {
	query := `
		UPDATE stock_reorder_rules SET
			min_level = $3, max_level = $4, reorder_point = $5, reorder_quantity = $6,
			auto_reorder = $7, preferred_supplier_id = $8, lead_time_days = $9, is_active = $10
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		rule.TenantID, rule.ID, rule.MinLevel, rule.MaxLevel, rule.ReorderPoint,
		rule.ReorderQuantity, rule.AutoReorder, rule.PreferredSupplierID, rule.LeadTimeDays,
		rule.IsActive,
	).Scan(&rule.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound("reorder rule")
	}
	return err
}

// GetByID gets a rule by ID
func (r *ReorderRuleRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.ReorderRule, error) {
	var rule domain.ReorderRule
	query := `SELECT ` + ruleColumns + ` FROM stock_reorder_rules WHERE tenant_id = $1 AND id = $2`
	if err := r.db.Conn(ctx).GetContext(ctx, &rule, query, tenantID, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("reorder rule")
		}
		return nil, err
	}
	return &rule, nil
}

// List lists all rules of a tenant. activeOnly skips disabled rules.
func (r *ReorderRuleRepository) List(ctx context.Context, tenantID string, activeOnly bool) ([]*domain.ReorderRule, error) {
	rules := []*domain.ReorderRule{}
	query := `
		SELECT ` + ruleColumns + ` FROM stock_reorder_rules
		WHERE tenant_id = $1 AND (NOT $2 OR is_active)
		ORDER BY item_id, warehouse_id NULLS FIRST
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &rules, query, tenantID, activeOnly); err != nil {
		return nil, err
	}
	return rules, nil
}

// Delete deletes a rule
func (r *ReorderRuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM stock_reorder_rules WHERE tenant_id = $1 AND id = $2`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, tenantID, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("reorder rule")
	}
	return nil
}

// ListMonitoredTenants returns every tenant with an active rule or a batch
// carrying an expiry date. The query spans tenants, so the connection role
// must bypass row level security.
func (r *ReorderRuleRepository) ListMonitoredTenants(ctx context.Context) ([]string, error) {
	var tenants []string
	query := `
		SELECT tenant_id::text FROM stock_reorder_rules WHERE is_active
		UNION
		SELECT tenant_id::text FROM stock_batches WHERE expiry_date IS NOT NULL
		ORDER BY 1
	`
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, err
	}
	return tenants, nil
}
