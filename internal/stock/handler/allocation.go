package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/errors"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
)

// AllocationHandler handles reservations, consumption, transfers and
// write-offs.
type AllocationHandler struct {
	service AllocationService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc AllocationService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

type orderRequest struct {
	ConsumerKind string              `json:"consumer_kind"`
	ConsumerID   string              `json:"consumer_id"`
	Mode         domain.Mode         `json:"mode"`
	Strategy     string              `json:"strategy,omitempty"`
	Lines        []service.OrderLine `json:"lines"`
}

func (req orderRequest) input(tenantID string, consumer domain.ConsumerRef) service.OrderInput {
	return service.OrderInput{
		TenantID: tenantID,
		Consumer: consumer,
		Mode:     req.Mode,
		Strategy: req.Strategy,
		Lines:    req.Lines,
	}
}

// Allocate draws stock for every line of an order
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req orderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	consumer, err := domain.ParseConsumerRef(req.ConsumerKind, req.ConsumerID)
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"consumer_kind": err.Error()}))
		return
	}

	alloc, err := h.service.AllocateOrder(r.Context(), req.input(tid, consumer))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, alloc)
}

// Reallocate replaces what a consumer holds with a new set of lines
func (h *AllocationHandler) Reallocate(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	consumer, err := consumerParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req orderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	alloc, err := h.service.Reallocate(r.Context(), req.input(tid, consumer))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alloc)
}

// Holdings lists what a consumer holds or consumed
func (h *AllocationHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	h.byConsumer(w, r, h.service.Holdings)
}

// Release returns the held stock of a consumer
func (h *AllocationHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.byConsumer(w, r, h.service.Release)
}

// Consume confirms the reservation of a consumer
func (h *AllocationHandler) Consume(w http.ResponseWriter, r *http.Request) {
	h.byConsumer(w, r, h.service.Consume)
}

func (h *AllocationHandler) byConsumer(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, tenantID string, consumer domain.ConsumerRef) ([]domain.UnitDraw, error),
) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	consumer, err := consumerParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	draws, err := fn(r.Context(), tid, consumer)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, draws, &httputil.Meta{Count: len(draws)})
}

// Cancel reverses a whole order, sold stock included
func (h *AllocationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	consumer, err := consumerParam(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	draws, err := h.service.CancelOrder(r.Context(), tid, consumer, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, draws, &httputil.Meta{Count: len(draws)})
}

// Availability previews what an allocation would draw
func (h *AllocationHandler) Availability(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.SelectInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid

	result, err := h.service.SelectUnits(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// PickTransfer puts the reserved stock of a transfer in transit
func (h *AllocationHandler) PickTransfer(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	draws, err := h.service.PickTransfer(r.Context(), tid, chi.URLParam(r, "transferID"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, draws, &httputil.Meta{Count: len(draws)})
}

// ReceiveTransfer books an in-transit transfer into its destination
func (h *AllocationHandler) ReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.ReceiveTransferInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid
	in.TransferID = chi.URLParam(r, "transferID")

	batches, err := h.service.ReceiveTransfer(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batches)
}

// WriteOff removes damaged or lost stock from a batch
func (h *AllocationHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	tid, err := tenantID(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	var in service.WriteOffInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.Error(w, err)
		return
	}
	in.TenantID = tid

	draws, err := h.service.WriteOff(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, draws, &httputil.Meta{Count: len(draws)})
}
