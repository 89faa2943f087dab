package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/tenant"
)

// AlertHandler handles alerts, reorder rules and on-demand scans
type AlertHandler struct {
	service MonitorService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc MonitorService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// List lists alerts, filtered by status, type and item
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	q := r.URL.Query()
	f := repository.AlertFilter{ItemID: optionalQuery(r, "item_id")}
	if s := q.Get("status"); s != "" {
		status := domain.AlertStatus(s)
		f.Status = &status
	}
	if t := q.Get("type"); t != "" {
		typ := domain.AlertType(t)
		f.Type = &typ
	}
	if f.Limit, err = intQuery(r, "limit", 50); err != nil {
		httputil.Error(w, err)
		return
	}
	if f.Offset, err = intQuery(r, "offset", 0); err != nil {
		httputil.Error(w, err)
		return
	}

	alerts, err := h.service.ListAlerts(r.Context(), tid, f)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, &httputil.Meta{Limit: f.Limit, Offset: f.Offset, Count: len(alerts)})
}

// Dismiss dismisses an open alert
func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	alert, err := h.service.DismissAlert(r.Context(), tid, chi.URLParam(r, "id"), tenant.ActorID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// Scan runs the monitor for the calling tenant now
func (h *AlertHandler) Scan(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.service.Scan(r.Context(), tid)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

// ListRules lists reorder rules; ?active=true limits to active ones
func (h *AlertHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rules, err := h.service.ListRules(r.Context(), tid, r.URL.Query().Get("active") == "true")
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, rules, &httputil.Meta{Count: len(rules)})
}

// GetRule gets a reorder rule
func (h *AlertHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	rule, err := h.service.GetRule(r.Context(), tid, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rule)
}

// CreateRule creates a reorder rule
func (h *AlertHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.ReorderRuleInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid

	rule, err := h.service.CreateRule(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, rule)
}

// UpdateRule replaces the thresholds of a reorder rule
func (h *AlertHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.ReorderRuleInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid

	rule, err := h.service.UpdateRule(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rule)
}

// DeleteRule deletes a reorder rule
func (h *AlertHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.DeleteRule(r.Context(), tid, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Validation(map[string]string{key: "must be a non-negative integer"})
	}
	return n, nil
}
