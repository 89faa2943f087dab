package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service BatchService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc BatchService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Create registers a received batch
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.RegisterBatchInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid

	batch, err := h.service.RegisterBatch(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// List lists the batches of an item, oldest first
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	itemID := r.URL.Query().Get("item_id")
	if itemID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"item_id": "this field is required"}))
		return
	}

	batches, err := h.service.ListBatches(r.Context(), tid, itemID, optionalQuery(r, "warehouse_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, batches, &httputil.Meta{Count: len(batches)})
}

// Get gets a batch with its quantity breakdown
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.GetBatch(r.Context(), tid, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// AdjustQuantity corrects the quantity of a batch
func (h *BatchHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
		Reason   string          `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.AdjustBatchQuantity(r.Context(), service.AdjustBatchInput{
		TenantID:    tid,
		BatchID:     chi.URLParam(r, "id"),
		NewQuantity: req.Quantity,
		Reason:      req.Reason,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// History lists the movements of a batch
func (h *BatchHandler) History(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	movements, err := h.service.History(r.Context(), tid, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{Count: len(movements)})
}

// Delete deletes a batch that was never drawn from
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.service.DeleteBatch(r.Context(), tid, chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
