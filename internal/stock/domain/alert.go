package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AlertType string

const (
	AlertLowStock     AlertType = "LOW_STOCK"
	AlertReorderPoint AlertType = "REORDER_POINT"
	AlertOverStock    AlertType = "OVER_STOCK"
	AlertExpiringSoon AlertType = "EXPIRING_SOON"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

type AlertStatus string

const (
	AlertOpen      AlertStatus = "open"
	AlertDismissed AlertStatus = "dismissed"
	AlertResolved  AlertStatus = "resolved"
)

// Alert is a persisted monitor finding.
type Alert struct {
	ID              string           `db:"id" json:"id"`
	TenantID        string           `db:"tenant_id" json:"tenant_id"`
	Type            AlertType        `db:"type" json:"type"`
	Severity        Severity         `db:"severity" json:"severity"`
	ItemID          string           `db:"item_id" json:"item_id"`
	WarehouseID     *string          `db:"warehouse_id" json:"warehouse_id,omitempty"`
	BatchID         *string          `db:"batch_id" json:"batch_id,omitempty"`
	Message         string           `db:"message" json:"message"`
	CurrentStock    *decimal.Decimal `db:"current_stock" json:"current_stock,omitempty"`
	Threshold       *decimal.Decimal `db:"threshold" json:"threshold,omitempty"`
	ExpiryDate      *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	DaysUntilExpiry *int             `db:"days_until_expiry" json:"days_until_expiry,omitempty"`
	Status          AlertStatus      `db:"status" json:"status"`
	DedupeKey       string           `db:"dedupe_key" json:"-"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
	DismissedBy     *string          `db:"dismissed_by" json:"dismissed_by,omitempty"`
	DismissedAt     *time.Time       `db:"dismissed_at" json:"dismissed_at,omitempty"`
	ResolvedAt      *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
}

// AlertDedupeKey identifies a condition across scans.
func AlertDedupeKey(t AlertType, itemID string, warehouseID, batchID *string) string {
	parts := []string{string(t), itemID, "-", "-"}
	if warehouseID != nil {
		parts[2] = *warehouseID
	}
	if batchID != nil {
		parts[3] = *batchID
	}
	return strings.Join(parts, ":")
}

// ReorderRule drives stock level classification for one item.
type ReorderRule struct {
	ID                  string          `db:"id" json:"id"`
	TenantID            string          `db:"tenant_id" json:"tenant_id"`
	ItemID              string          `db:"item_id" json:"item_id"`
	WarehouseID         *string         `db:"warehouse_id" json:"warehouse_id,omitempty"`
	MinLevel            decimal.Decimal `db:"min_level" json:"min_level"`
	MaxLevel            decimal.Decimal `db:"max_level" json:"max_level"`
	ReorderPoint        decimal.Decimal `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity     decimal.Decimal `db:"reorder_quantity" json:"reorder_quantity"`
	AutoReorder         bool            `db:"auto_reorder" json:"auto_reorder"`
	PreferredSupplierID *string         `db:"preferred_supplier_id" json:"preferred_supplier_id,omitempty"`
	LeadTimeDays        int             `db:"lead_time_days" json:"lead_time_days"`
	IsActive            bool            `db:"is_active" json:"is_active"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// Classify maps a current stock level to an alert type and severity. ok is
// false when the level is within bounds.
func (r *ReorderRule) Classify(current decimal.Decimal) (AlertType, Severity, decimal.Decimal, bool) {
	switch {
	case current.LessThanOrEqual(r.MinLevel):
		if current.IsZero() || current.IsNegative() {
			return AlertLowStock, SeverityCritical, r.MinLevel, true
		}
		return AlertLowStock, SeverityHigh, r.MinLevel, true
	case current.LessThanOrEqual(r.ReorderPoint):
		return AlertReorderPoint, SeverityMedium, r.ReorderPoint, true
	case r.MaxLevel.IsPositive() && current.GreaterThanOrEqual(r.MaxLevel):
		return AlertOverStock, SeverityLow, r.MaxLevel, true
	}
	return "", "", decimal.Zero, false
}

// ExpirySeverity scales severity by the days left before expiry.
func ExpirySeverity(days int) Severity {
	switch {
	case days <= 7:
		return SeverityCritical
	case days <= 14:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// MovementAction labels a ledger audit row.
type MovementAction string

const (
	MovementRegister   MovementAction = "REGISTER"
	MovementAdjustUp   MovementAction = "ADJUST_UP"
	MovementAdjustDown MovementAction = "ADJUST_DOWN"
	MovementReserve    MovementAction = "RESERVE"
	MovementConsume    MovementAction = "CONSUME"
	MovementRelease    MovementAction = "RELEASE"
	MovementPick       MovementAction = "PICK"
	MovementReceive    MovementAction = "RECEIVE"
	MovementWriteOff   MovementAction = "WRITE_OFF"
	MovementCancel     MovementAction = "CANCEL"
)

// Movement is an append-only record of one unit transition.
type Movement struct {
	ID         string
	TenantID   string
	UnitID     string
	BatchID    string
	ItemID     string
	Action     MovementAction
	FromStatus *UnitStatus
	ToStatus   UnitStatus
	Quantity   decimal.Decimal
	Consumer   ConsumerRef
	Reason     *string
	CreatedAt  time.Time
}
