package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// TenantPricing is the tenant configuration the engine prices with.
type TenantPricing struct {
	MarkupPercent  decimal.Decimal `json:"markup_percent"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
}

// TenantConfigSource reads markup and tax settings. A nil result means the
// tenant has configured nothing.
type TenantConfigSource interface {
	TenantPricing(ctx context.Context, tenantID string) (*TenantPricing, error)
}

// InsuranceSource looks up a patient's current insurance. A nil result means
// the patient is uninsured.
type InsuranceSource interface {
	Coverage(ctx context.Context, tenantID, patientID string) (*InsuranceCoverage, error)
}

// QuoteLine is the allocated stock for one order line.
type QuoteLine struct {
	ItemID  string
	Taxable bool
	Draws   []domain.UnitDraw
}

// QuoteInput describes an order to price. Insurance, when set, is the
// snapshot already taken for the order and wins over a lookup by PatientID.
type QuoteInput struct {
	TenantID  string
	PatientID *string
	Insurance *InsuranceCoverage
	OrderDate time.Time
	Discount  decimal.Decimal
	Lines     []QuoteLine
}

// OrderQuote is the priced order.
type OrderQuote struct {
	MarkupPercent  decimal.Decimal    `json:"markup_percent"`
	TaxRatePercent decimal.Decimal    `json:"tax_rate_percent"`
	Insurance      *InsuranceCoverage `json:"insurance,omitempty"`
	Lines          []Line             `json:"lines"`
	Totals         Totals             `json:"totals"`
}

// Quoter prices allocations using tenant and insurance collaborators.
type Quoter struct {
	configs       TenantConfigSource
	cache         *ConfigCache
	insurance     InsuranceSource
	defaultMarkup decimal.Decimal
	logger        *logger.Logger
}

// NewQuoter wires a quoter. cache and insurance may be nil.
func NewQuoter(configs TenantConfigSource, cache *ConfigCache, insurance InsuranceSource, defaultMarkup decimal.Decimal, log *logger.Logger) *Quoter {
	return &Quoter{
		configs:       configs,
		cache:         cache,
		insurance:     insurance,
		defaultMarkup: defaultMarkup,
		logger:        log.WithComponent("pricing"),
	}
}

// Quote prices every drawn slice at its own unit cost and aggregates the order.
func (q *Quoter) Quote(ctx context.Context, in QuoteInput) (*OrderQuote, error) {
	cfg, err := q.tenantPricing(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	coverage := in.Insurance
	if coverage == nil && in.PatientID != nil && q.insurance != nil {
		coverage, err = q.insurance.Coverage(ctx, in.TenantID, *in.PatientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load insurance coverage: %w", err)
		}
	}
	orderDate := in.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}
	if !coverage.IsValidAt(orderDate) {
		coverage = nil
	}

	quote := &OrderQuote{
		MarkupPercent:  cfg.MarkupPercent,
		TaxRatePercent: cfg.TaxRatePercent,
		Insurance:      coverage,
		Lines:          make([]Line, 0),
	}
	for _, ql := range in.Lines {
		for _, d := range ql.Draws {
			quote.Lines = append(quote.Lines, PriceLine(Line{
				ItemID:   ql.ItemID,
				BatchID:  d.BatchID,
				Quantity: d.Quantity,
				UnitCost: d.UnitCost,
				Taxable:  ql.Taxable,
				TaxRate:  cfg.TaxRatePercent,
			}, cfg.MarkupPercent))
		}
	}
	quote.Totals = ComputeTotals(quote.Lines, in.Discount, coverage, orderDate)
	return quote, nil
}

func (q *Quoter) tenantPricing(ctx context.Context, tenantID string) (*TenantPricing, error) {
	load := func(ctx context.Context) (*TenantPricing, error) {
		cfg, err := q.configs.TenantPricing(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tenant pricing: %w", err)
		}
		if cfg == nil {
			cfg = &TenantPricing{MarkupPercent: q.defaultMarkup, TaxRatePercent: decimal.Zero}
		}
		return cfg, nil
	}

	var loadErr error
	cfg, err := q.cache.Fetch(ctx, tenantID, func(ctx context.Context) (*TenantPricing, error) {
		cfg, err := load(ctx)
		loadErr = err
		return cfg, err
	})
	if err == nil {
		return cfg, nil
	}
	if loadErr != nil {
		return nil, loadErr
	}
	q.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("pricing cache unavailable, reading source")
	return load(ctx)
}
