package handler

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/permissions"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// Handlers groups everything mounted under /api/v1/stock.
type Handlers struct {
	Batches     *BatchHandler
	Allocations *AllocationHandler
	Alerts      *AlertHandler
	Pricing     *PricingHandler
}

// RouterOptions tunes the router.
type RouterOptions struct {
	// ScanRateLimit caps on-demand scans per tenant per minute. Zero disables the limit.
	ScanRateLimit int
	// EnforcePermissions checks the gateway-forwarded permission list per route.
	EnforcePermissions bool
	// Health is served on /health when set.
	Health http.HandlerFunc
}

// NewRouter builds the stock HTTP API.
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.TenantMiddleware)

	if opts.Health != nil {
		r.Get("/health", opts.Health)
	}

	need := func(perms ...string) func(http.Handler) http.Handler {
		if !opts.EnforcePermissions {
			return func(next http.Handler) http.Handler { return next }
		}
		return permissions.Require(perms...)
	}
	read := need(permissions.StockRead)

	r.Route("/api/v1/stock", func(r chi.Router) {
		if h.Batches != nil {
			r.Route("/batches", func(r chi.Router) {
				r.With(read).Get("/", h.Batches.List)
				r.With(need(permissions.StockReceive)).Post("/", h.Batches.Create)
				r.With(read).Get("/{id}", h.Batches.Get)
				r.With(need(permissions.StockAdjust)).Delete("/{id}", h.Batches.Delete)
				r.With(need(permissions.StockAdjust)).Post("/{id}/adjust", h.Batches.AdjustQuantity)
				r.With(read).Get("/{id}/history", h.Batches.History)
			})
		}

		if h.Allocations != nil {
			allocate := need(permissions.StockAllocate)
			transfer := need(permissions.StockTransfer)

			r.With(read).Post("/availability", h.Allocations.Availability)
			r.Route("/allocations", func(r chi.Router) {
				r.With(allocate).Post("/", h.Allocations.Allocate)
				r.Route("/{kind}/{consumerID}", func(r chi.Router) {
					r.With(read).Get("/", h.Allocations.Holdings)
					r.With(allocate).Put("/", h.Allocations.Reallocate)
					r.With(allocate).Post("/release", h.Allocations.Release)
					r.With(allocate).Post("/consume", h.Allocations.Consume)
					r.With(allocate).Post("/cancel", h.Allocations.Cancel)
				})
			})
			r.With(transfer).Post("/transfers/{transferID}/pick", h.Allocations.PickTransfer)
			r.With(transfer).Post("/transfers/{transferID}/receive", h.Allocations.ReceiveTransfer)
			r.With(need(permissions.StockWriteOff)).Post("/write-offs", h.Allocations.WriteOff)
		}

		if h.Alerts != nil {
			manage := need(permissions.StockAlertsManage)

			r.With(read).Get("/alerts", h.Alerts.List)
			r.With(manage).Post("/alerts/{id}/dismiss", h.Alerts.Dismiss)
			r.Route("/reorder-rules", func(r chi.Router) {
				r.With(read).Get("/", h.Alerts.ListRules)
				r.With(manage).Post("/", h.Alerts.CreateRule)
				r.With(read).Get("/{id}", h.Alerts.GetRule)
				r.With(manage).Put("/{id}", h.Alerts.UpdateRule)
				r.With(manage).Delete("/{id}", h.Alerts.DeleteRule)
			})
			r.Group(func(r chi.Router) {
				r.Use(manage)
				if opts.ScanRateLimit > 0 {
					r.Use(httprate.Limit(opts.ScanRateLimit, time.Minute, httprate.WithKeyFuncs(tenantKey)))
				}
				r.Post("/scans", h.Alerts.Scan)
			})
		}

		if h.Pricing != nil {
			r.With(read).Post("/quotes", h.Pricing.Quote)
			r.With(read).Get("/pricing", h.Pricing.GetTenantPricing)
			r.With(need(permissions.StockPricingManage)).Put("/pricing", h.Pricing.SaveTenantPricing)
		}
	})

	return r
}

// tenantKey rate-limits per tenant, falling back to the client address.
func tenantKey(r *http.Request) (string, error) {
	if id, err := tenant.TenantID(r.Context()); err == nil {
		return "tenant:" + id, nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}
