package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/pkg/database"
)

// TenantPricingRepository stores per-tenant markup and tax settings. It is
// the pricing.TenantConfigSource of the service.
type TenantPricingRepository struct {
	db *database.DB
}

// NewTenantPricingRepository creates a new tenant pricing repository
func NewTenantPricingRepository(db *database.DB) *TenantPricingRepository {
	return &TenantPricingRepository{db: db}
}

// TenantPricing returns nil when the tenant has no row.
func (r *TenantPricingRepository) TenantPricing(ctx context.Context, tenantID string) (*pricing.TenantPricing, error) {
	var p pricing.TenantPricing
	err := r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			SELECT markup_percent, tax_rate_percent FROM stock_tenant_pricing
			WHERE tenant_id = $1
		`
		return r.db.Conn(ctx).QueryRowxContext(ctx, query, tenantID).Scan(&p.MarkupPercent, &p.TaxRatePercent)
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save creates or replaces the tenant's pricing.
func (r *TenantPricingRepository) Save(ctx context.Context, tenantID string, p pricing.TenantPricing) error {
	return r.db.WithTenantRLS(ctx, tenantID, func(ctx context.Context) error {
		query := `
			INSERT INTO stock_tenant_pricing (tenant_id, markup_percent, tax_rate_percent)
			VALUES ($1, $2, $3)
			ON CONFLICT (tenant_id) DO UPDATE SET
				markup_percent = EXCLUDED.markup_percent,
				tax_rate_percent = EXCLUDED.tax_rate_percent,
				updated_at = NOW()
		`
		_, err := r.db.Conn(ctx).ExecContext(ctx, query, tenantID, p.MarkupPercent, p.TaxRatePercent)
		return err
	})
}

var _ pricing.TenantConfigSource = (*TenantPricingRepository)(nil)
