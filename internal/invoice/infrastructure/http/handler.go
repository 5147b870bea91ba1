package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("invoice-http")}
}

type createReq struct {
	Lines         []domain.Line   `json:"lines" validate:"dive"`
	Draft         bool            `json:"draft"`
	Notes         string          `json:"notes"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	DueAt         *time.Time      `json:"due_at"`
}

type linesReq struct {
	Lines []domain.Line `json:"lines" validate:"required,min=1,dive"`
}

type qtyReq struct {
	Qty int `json:"qty"`
}

type markPaidReq struct {
	PaymentID *int64 `json:"payment_id" validate:"omitempty,gt=0"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders/{id}/invoices", h.create)
	r.Get("/orders/{id}/invoices", h.listByOrder)
	r.Get("/orders/{id}/invoiceable", h.invoiceable)
	r.Route("/invoices/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/items", h.addItems)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Post("/issue", h.issue)
		r.Post("/mark-paid", h.markPaid)
		r.Post("/void", h.void)
		r.Post("/mark-refunded", h.markRefunded)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateInvoice")
	defer span.End()

	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req createReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	inv, err := h.service.CreateFromOrder(ctx, application.CreateInput{
		OrderID:       orderID,
		Lines:         req.Lines,
		Draft:         req.Draft,
		Notes:         req.Notes,
		ShippingTotal: req.ShippingTotal,
		DueAt:         req.DueAt,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) listByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	list, err := h.service.ListByOrder(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) invoiceable(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	rem, err := h.service.Invoiceable(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rem)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) addItems(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddInvoiceItems")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req linesReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	inv, err := h.service.AddItems(ctx, id, req.Lines)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateInvoiceItem")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req qtyReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	inv, err := h.service.UpdateItemQty(ctx, id, itemID, req.Qty)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "IssueInvoice", h.service.Issue)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "VoidInvoice", h.service.Void)
}

func (h *Handler) markRefunded(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "MarkInvoiceRefunded", h.service.MarkRefunded)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "MarkInvoicePaid")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req markPaidReq
	if r.ContentLength > 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
	}
	inv, err := h.service.MarkPaid(ctx, id, req.PaymentID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, span string, fn func(ctx context.Context, id int64) (domain.Invoice, error)) {
	ctx, sp := h.tracer.Start(r.Context(), span)
	defer sp.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	inv, err := fn(ctx, id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inv)
}
