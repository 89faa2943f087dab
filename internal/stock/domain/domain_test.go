package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/errors"
)

func TestConsumerRef(t *testing.T) {
	tests := []struct {
		ref    domain.ConsumerRef
		kind   domain.ConsumerKind
		status domain.UnitStatus
	}{
		{domain.SaleRef("1"), domain.ConsumerSale, domain.StatusSold},
		{domain.InvoiceRef("1"), domain.ConsumerInvoice, domain.StatusSold},
		{domain.DispenseRef("1"), domain.ConsumerDispense, domain.StatusSold},
		{domain.DeliveryItemRef("1"), domain.ConsumerDeliveryItem, domain.StatusSold},
		{domain.IssuanceRef("1"), domain.ConsumerIssuance, domain.StatusIssued},
		{domain.TransferRef("1"), domain.ConsumerTransfer, domain.StatusTransferred},
		{domain.AdjustmentRef("1"), domain.ConsumerAdjustment, domain.StatusAdjusted},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.ref.Kind())
			assert.Equal(t, tt.status, tt.ref.ConsumedStatus())
			assert.Equal(t, tt.status, domain.ModeConsume.TargetStatus(tt.ref))
			assert.Equal(t, domain.StatusReserved, domain.ModeReserve.TargetStatus(tt.ref))

			parsed, err := domain.ParseConsumerRef(string(tt.ref.Kind()), tt.ref.ID())
			require.NoError(t, err)
			assert.Equal(t, tt.ref, parsed)
		})
	}
}

func TestParseConsumerRef(t *testing.T) {
	zero, err := domain.ParseConsumerRef("", "")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
	assert.Equal(t, "none", zero.String())

	_, err = domain.ParseConsumerRef("sale", "")
	assert.Error(t, err)
	_, err = domain.ParseConsumerRef("", "id")
	assert.Error(t, err)
	_, err = domain.ParseConsumerRef("refund", "id")
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := domain.ParseStrategy("", domain.FIFO)
	require.NoError(t, err)
	assert.Equal(t, domain.FIFO, s)

	s, err = domain.ParseStrategy("lifo", domain.FIFO)
	require.NoError(t, err)
	assert.Equal(t, domain.LIFO, s)

	_, err = domain.ParseStrategy("random", domain.FIFO)
	assert.Error(t, err)
}

func TestReorderRule_Classify(t *testing.T) {
	rule := domain.ReorderRule{
		MinLevel:     decimal.NewFromInt(10),
		ReorderPoint: decimal.NewFromInt(20),
		MaxLevel:     decimal.NewFromInt(100),
	}

	tests := []struct {
		current  int64
		alert    domain.AlertType
		severity domain.Severity
		ok       bool
	}{
		{0, domain.AlertLowStock, domain.SeverityCritical, true},
		{5, domain.AlertLowStock, domain.SeverityHigh, true},
		{10, domain.AlertLowStock, domain.SeverityHigh, true},
		{15, domain.AlertReorderPoint, domain.SeverityMedium, true},
		{20, domain.AlertReorderPoint, domain.SeverityMedium, true},
		{50, "", "", false},
		{100, domain.AlertOverStock, domain.SeverityLow, true},
		{150, domain.AlertOverStock, domain.SeverityLow, true},
	}

	for _, tt := range tests {
		alert, severity, _, ok := rule.Classify(decimal.NewFromInt(tt.current))
		assert.Equal(t, tt.ok, ok, "current %d", tt.current)
		assert.Equal(t, tt.alert, alert, "current %d", tt.current)
		assert.Equal(t, tt.severity, severity, "current %d", tt.current)
	}
}

func TestExpirySeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityCritical, domain.ExpirySeverity(0))
	assert.Equal(t, domain.SeverityCritical, domain.ExpirySeverity(7))
	assert.Equal(t, domain.SeverityHigh, domain.ExpirySeverity(8))
	assert.Equal(t, domain.SeverityHigh, domain.ExpirySeverity(14))
	assert.Equal(t, domain.SeverityMedium, domain.ExpirySeverity(15))
	assert.Equal(t, domain.SeverityMedium, domain.ExpirySeverity(30))
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 17, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, domain.DaysUntilExpiry(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 14, domain.DaysUntilExpiry(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), now))

	expiry := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)
	b := domain.Batch{ExpiryDate: &expiry}
	assert.True(t, b.IsExpiredAt(now))
	assert.False(t, (&domain.Batch{}).IsExpiredAt(now))
}

func TestAlertDedupeKey(t *testing.T) {
	wh := "wh-1"
	batch := "b-1"
	assert.Equal(t, "LOW_STOCK:item-1:-:-", domain.AlertDedupeKey(domain.AlertLowStock, "item-1", nil, nil))
	assert.Equal(t, "EXPIRING_SOON:item-1:wh-1:b-1", domain.AlertDedupeKey(domain.AlertExpiringSoon, "item-1", &wh, &batch))
}

func TestNewInsufficientStock(t *testing.T) {
	err := domain.NewInsufficientStock("item-1", decimal.NewFromInt(5), decimal.NewFromInt(6))

	assert.ErrorIs(t, err, errors.ErrInsufficientStock)
	assert.Equal(t, "INSUFFICIENT_STOCK", err.Code)

	var typed *domain.InsufficientStockError
	require.ErrorAs(t, err, &typed)
	assert.True(t, typed.Available.Equal(decimal.NewFromInt(5)))
	assert.True(t, typed.Requested.Equal(decimal.NewFromInt(6)))
}
