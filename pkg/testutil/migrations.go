package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StockMigrations returns the stock engine schema in apply order. Every
// statement is idempotent so suites may apply it more than once.
func StockMigrations() []string {
	return []string{
		`CREATE OR REPLACE FUNCTION stock_touch_updated_at()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,

		`CREATE TABLE IF NOT EXISTS stock_batches (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			item_id UUID NOT NULL,
			warehouse_id UUID,
			supplier_id UUID,
			quantity NUMERIC(18,4) NOT NULL,
			unit_cost NUMERIC(18,4) NOT NULL,
			expiry_date DATE,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			receipt_type VARCHAR(32) NOT NULL,
			reference VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_batches_quantity_nonneg CHECK (quantity >= 0),
			CONSTRAINT stock_batches_unit_cost_nonneg CHECK (unit_cost >= 0),
			CONSTRAINT stock_batches_receipt_type_valid CHECK (receipt_type IN
				('PURCHASE_ORDER', 'DIRECT_ADDITION', 'DELIVERY', 'REFUND', 'TRANSFER', 'ADJUSTMENT'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_batches_item ON stock_batches (tenant_id, item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_batches_expiry ON stock_batches (tenant_id, expiry_date) WHERE expiry_date IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS stock_units (
			id UUID PRIMARY KEY,
			seq BIGSERIAL NOT NULL,
			batch_id UUID NOT NULL REFERENCES stock_batches(id) ON DELETE CASCADE,
			tenant_id UUID NOT NULL,
			item_id UUID NOT NULL,
			warehouse_id UUID,
			expiry_date DATE,
			received_at TIMESTAMPTZ NOT NULL,
			unit_cost NUMERIC(18,4) NOT NULL,
			parent_unit_id UUID REFERENCES stock_units(id) ON DELETE CASCADE,
			status VARCHAR(16) NOT NULL,
			quantity NUMERIC(18,4) NOT NULL,
			quantity_available NUMERIC(18,4) NOT NULL,
			drawn_quantity NUMERIC(18,4) NOT NULL DEFAULT 0,
			consumer_kind VARCHAR(32),
			consumer_id VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_units_status_valid CHECK (status IN
				('AVAILABLE', 'RESERVED', 'IN_TRANSIT', 'SOLD', 'ISSUED', 'TRANSFERRED', 'ADJUSTED')),
			CONSTRAINT stock_units_qty_nonneg CHECK (quantity_available >= 0 AND drawn_quantity >= 0
				AND quantity_available <= quantity),
			CONSTRAINT stock_units_available_shape CHECK (
				(status = 'AVAILABLE' AND quantity_available > 0 AND drawn_quantity = 0)
				OR (status <> 'AVAILABLE' AND quantity_available = 0)),
			CONSTRAINT stock_units_consumer_link CHECK (
				(consumer_kind IS NULL) = (consumer_id IS NULL)
				AND (status = 'AVAILABLE') = (consumer_kind IS NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_units_status ON stock_units (tenant_id, item_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_units_selection ON stock_units (tenant_id, item_id, expiry_date, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_units_consumer ON stock_units (tenant_id, consumer_kind, consumer_id)
			WHERE consumer_kind IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_stock_units_batch ON stock_units (batch_id)`,

		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			unit_id UUID NOT NULL,
			batch_id UUID NOT NULL,
			item_id UUID NOT NULL,
			action VARCHAR(16) NOT NULL,
			from_status VARCHAR(16),
			to_status VARCHAR(16) NOT NULL,
			quantity NUMERIC(18,4) NOT NULL,
			consumer_kind VARCHAR(32),
			consumer_id VARCHAR(64),
			reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_batch ON stock_movements (tenant_id, batch_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_consumer ON stock_movements (tenant_id, consumer_kind, consumer_id)`,

		`CREATE TABLE IF NOT EXISTS stock_reorder_rules (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			item_id UUID NOT NULL,
			warehouse_id UUID,
			min_level NUMERIC(18,4) NOT NULL DEFAULT 0,
			max_level NUMERIC(18,4) NOT NULL DEFAULT 0,
			reorder_point NUMERIC(18,4) NOT NULL DEFAULT 0,
			reorder_quantity NUMERIC(18,4) NOT NULL DEFAULT 0,
			auto_reorder BOOLEAN NOT NULL DEFAULT FALSE,
			preferred_supplier_id UUID,
			lead_time_days INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_reorder_rules_levels_nonneg CHECK (min_level >= 0 AND max_level >= 0
				AND reorder_point >= 0 AND reorder_quantity >= 0 AND lead_time_days >= 0)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stock_reorder_rules_item_unique ON stock_reorder_rules
			(tenant_id, item_id, COALESCE(warehouse_id, '00000000-0000-0000-0000-000000000000'::uuid))`,

		`CREATE TABLE IF NOT EXISTS stock_alerts (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			type VARCHAR(32) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			item_id UUID NOT NULL,
			warehouse_id UUID,
			batch_id UUID,
			message TEXT NOT NULL,
			current_stock NUMERIC(18,4),
			threshold NUMERIC(18,4),
			expiry_date DATE,
			days_until_expiry INTEGER,
			status VARCHAR(16) NOT NULL DEFAULT 'open',
			dedupe_key VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			dismissed_by VARCHAR(64),
			dismissed_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ,
			CONSTRAINT stock_alerts_status_valid CHECK (status IN ('open', 'dismissed', 'resolved'))
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stock_alerts_dedupe_active ON stock_alerts (tenant_id, dedupe_key)
			WHERE status IN ('open', 'dismissed')`,
		`CREATE INDEX IF NOT EXISTS idx_stock_alerts_open ON stock_alerts (tenant_id, status, created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS stock_tenant_pricing (
			tenant_id UUID PRIMARY KEY,
			markup_percent NUMERIC(9,4) NOT NULL DEFAULT 0,
			tax_rate_percent NUMERIC(9,4) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`DO $$
		DECLARE t TEXT;
		BEGIN
			FOREACH t IN ARRAY ARRAY['stock_batches', 'stock_units', 'stock_reorder_rules', 'stock_alerts'] LOOP
				IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = t || '_touch_updated_at') THEN
					EXECUTE format('CREATE TRIGGER %I BEFORE UPDATE ON %I FOR EACH ROW EXECUTE FUNCTION stock_touch_updated_at()',
						t || '_touch_updated_at', t);
				END IF;
			END LOOP;
		END $$`,

		`DO $$
		DECLARE t TEXT;
		BEGIN
			FOREACH t IN ARRAY ARRAY['stock_batches', 'stock_units', 'stock_movements', 'stock_reorder_rules', 'stock_alerts', 'stock_tenant_pricing'] LOOP
				EXECUTE format('ALTER TABLE %I ENABLE ROW LEVEL SECURITY', t);
				IF NOT EXISTS (SELECT 1 FROM pg_policies WHERE tablename = t AND policyname = 'tenant_isolation') THEN
					EXECUTE format('CREATE POLICY tenant_isolation ON %I
						USING (tenant_id = NULLIF(current_setting(''app.current_tenant'', true), '''')::uuid)', t);
				END IF;
			END LOOP;
		END $$`,
	}
}

// ApplyMigrations runs migrations in order on db.
func ApplyMigrations(ctx context.Context, db *sqlx.DB, migrations []string) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	return nil
}
