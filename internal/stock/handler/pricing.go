package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// PricingHandler quotes allocated stock and manages tenant pricing.
type PricingHandler struct {
	quoter      Quoter
	allocations AllocationService
	store       PricingStore
	cache       CacheBumper
	logger      *logger.Logger
}

// NewPricingHandler creates a new pricing handler. cache may be nil.
func NewPricingHandler(quoter Quoter, allocations AllocationService, store PricingStore, cache CacheBumper, log *logger.Logger) *PricingHandler {
	return &PricingHandler{
		quoter:      quoter,
		allocations: allocations,
		store:       store,
		cache:       cache,
		logger:      log,
	}
}

type quoteRequest struct {
	ConsumerKind    string                     `json:"consumer_kind" validate:"required"`
	ConsumerID      string                     `json:"consumer_id" validate:"required"`
	PatientID       *string                    `json:"patient_id,omitempty"`
	Insurance       *pricing.InsuranceCoverage `json:"insurance,omitempty"`
	OrderDate       *time.Time                 `json:"order_date,omitempty"`
	Discount        decimal.Decimal            `json:"discount" validate:"gte=0"`
	NonTaxableItems []string                   `json:"non_taxable_items,omitempty"`
}

// Quote prices what a consumer holds, each drawn slice at its own cost
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req quoteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	consumer, err := domain.ParseConsumerRef(req.ConsumerKind, req.ConsumerID)
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"consumer_kind": err.Error()}))
		return
	}

	draws, err := h.allocations.Holdings(r.Context(), tid, consumer)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	in := pricing.QuoteInput{
		TenantID:  tid,
		PatientID: req.PatientID,
		Insurance: req.Insurance,
		Discount:  req.Discount,
		Lines:     quoteLines(draws, req.NonTaxableItems),
	}
	if req.OrderDate != nil {
		in.OrderDate = *req.OrderDate
	}

	quote, err := h.quoter.Quote(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, quote)
}

// quoteLines groups draws per item, keeping first-seen item order.
func quoteLines(draws []domain.UnitDraw, nonTaxable []string) []pricing.QuoteLine {
	exempt := make(map[string]bool, len(nonTaxable))
	for _, id := range nonTaxable {
		exempt[id] = true
	}

	index := map[string]int{}
	lines := make([]pricing.QuoteLine, 0)
	for _, d := range draws {
		i, ok := index[d.ItemID]
		if !ok {
			i = len(lines)
			index[d.ItemID] = i
			lines = append(lines, pricing.QuoteLine{ItemID: d.ItemID, Taxable: !exempt[d.ItemID]})
		}
		lines[i].Draws = append(lines[i].Draws, d)
	}
	return lines
}

// GetTenantPricing returns the tenant's markup and tax settings
func (h *PricingHandler) GetTenantPricing(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	cfg, err := h.store.TenantPricing(r.Context(), tid)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if cfg == nil {
		httputil.Error(w, errors.NotFound("tenant pricing"))
		return
	}

	httputil.JSON(w, http.StatusOK, cfg)
}

type tenantPricingRequest struct {
	MarkupPercent  decimal.Decimal `json:"markup_percent" validate:"gte=0,lte=1000"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent" validate:"gte=0,lte=100"`
}

// SaveTenantPricing stores the tenant's markup and tax settings
func (h *PricingHandler) SaveTenantPricing(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req tenantPricingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	cfg := pricing.TenantPricing{MarkupPercent: req.MarkupPercent, TaxRatePercent: req.TaxRatePercent}
	if err := h.store.Save(r.Context(), tid, cfg); err != nil {
		httputil.Error(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Bump(r.Context()); err != nil {
			h.logger.Warn().Err(err).Str("tenant_id", tid).Msg("failed to invalidate pricing cache")
		}
	}

	httputil.JSON(w, http.StatusOK, cfg)
}
