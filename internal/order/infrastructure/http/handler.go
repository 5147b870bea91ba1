package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/order/application"
	"github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log      *slog.Logger
	checkout *application.Checkout
	service  *application.Service
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, checkout *application.Checkout, service *application.Service) *Handler {
	return &Handler{
		log:      log,
		checkout: checkout,
		service:  service,
		tracer:   otel.Tracer("order-http"),
	}
}

type placeOrderReq struct {
	Shipping              domain.Address  `json:"shipping_address"`
	Billing               *domain.Address `json:"billing_address"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
	PaymentProvider       string          `json:"payment_provider" validate:"required"`
}

type addressesReq struct {
	Shipping              domain.Address  `json:"shipping_address"`
	Billing               *domain.Address `json:"billing_address"`
	BillingSameAsShipping bool            `json:"billing_same_as_shipping"`
}

type statusReq struct {
	Status domain.Status `json:"status" validate:"required"`
	Note   string        `json:"note"`
}

type cancelReq struct {
	Note string `json:"note"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout/carts/{cartID}/place-order", h.placeOrder)
	r.Put("/checkout/orders/{id}/addresses", h.updateAddresses)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Get("/orders/{id}/timeline", h.timeline)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	cartID, err := httpx.IDParam(r, "cartID")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req placeOrderReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("cart.id", cartID), attribute.String("payment.provider", req.PaymentProvider))

	o, err := h.checkout.PlaceOrder(ctx, application.PlaceOrderInput{
		CartID:                cartID,
		ActorID:               httpx.UserID(r),
		Shipping:              req.Shipping,
		Billing:               req.Billing,
		BillingSameAsShipping: req.BillingSameAsShipping,
		PaymentProvider:       req.PaymentProvider,
	})
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))
	httpx.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) updateAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderAddresses")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req addressesReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	o, err := h.service.UpdateAddresses(ctx, id, application.AddressInput{
		Shipping:              req.Shipping,
		Billing:               req.Billing,
		BillingSameAsShipping: req.BillingSameAsShipping,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	o, err := h.service.Get(ctx, id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req statusReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	o, err := h.service.Transition(ctx, id, req.Status, req.Note, httpx.UserID(r))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req cancelReq
	if r.ContentLength > 0 {
		if err := httpx.Decode(r, &req); err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
	}
	o, err := h.service.Cancel(ctx, id, req.Note, httpx.UserID(r))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	events, err := h.service.Timeline(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}
