package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptType tags how a batch entered the system.
type ReceiptType string

const (
	ReceiptPurchaseOrder  ReceiptType = "PURCHASE_ORDER"
	ReceiptDirectAddition ReceiptType = "DIRECT_ADDITION"
	ReceiptDelivery       ReceiptType = "DELIVERY"
	ReceiptRefund         ReceiptType = "REFUND"
	ReceiptTransfer       ReceiptType = "TRANSFER"
	ReceiptAdjustment     ReceiptType = "ADJUSTMENT"
)

func (r ReceiptType) Valid() bool {
	switch r {
	case ReceiptPurchaseOrder, ReceiptDirectAddition, ReceiptDelivery, ReceiptRefund, ReceiptTransfer, ReceiptAdjustment:
		return true
	}
	return false
}

// Batch is a lot of one item received at one time with one cost and expiry.
type Batch struct {
	ID          string          `db:"id" json:"id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	ItemID      string          `db:"item_id" json:"item_id"`
	WarehouseID *string         `db:"warehouse_id" json:"warehouse_id,omitempty"`
	SupplierID  *string         `db:"supplier_id" json:"supplier_id,omitempty"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitCost    decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	ExpiryDate  *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	ReceivedAt  time.Time       `db:"received_at" json:"received_at"`
	ReceiptType ReceiptType     `db:"receipt_type" json:"receipt_type"`
	Reference   *string         `db:"reference" json:"reference,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// IsExpiredAt reports whether the batch expiry date lies before t's day.
func (b *Batch) IsExpiredAt(t time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(truncateDay(t))
}

// DaysUntilExpiry counts whole days from t's day to the expiry date.
func DaysUntilExpiry(expiry, t time.Time) int {
	return int(truncateDay(expiry).Sub(truncateDay(t)).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
