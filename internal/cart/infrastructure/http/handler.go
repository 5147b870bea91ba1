package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/cart/application"
	"github.com/dmehra2102/commerce-backoffice/internal/cart/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("cart-http"),
	}
}

type addItemReq struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id" validate:"omitempty,gt=0"`
	Qty       int    `json:"qty"`
}

type updateQtyReq struct {
	Qty int `json:"qty"`
}

type couponReq struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Post("/items", h.addItem)
		r.Delete("/items", h.clear)
		r.Patch("/items/{itemID}", h.updateQty)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Post("/coupon", h.applyCoupon)
		r.Delete("/coupon", h.removeCoupon)
	})
}

// current resolves the caller's active cart, minting a guest session when
// there is neither a user nor a session.
func (h *Handler) current(w http.ResponseWriter, r *http.Request) (domain.Cart, bool) {
	c, err := h.service.GetOrCreate(r.Context(), httpx.UserID(r), httpx.SessionID(r))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return domain.Cart{}, false
	}
	if c.UserID == nil && c.SessionID != nil {
		httpx.SetSessionID(w, *c.SessionID)
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int64("cart.id", c.ID))
	return c, true
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCart")
	defer span.End()

	c, ok := h.current(w, r.WithContext(ctx))
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()
	r = r.WithContext(ctx)

	var req addItemReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err := h.service.AddItem(ctx, c.ID, req.ProductID, req.VariantID, req.Qty)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) updateQty(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCartItem")
	defer span.End()
	r = r.WithContext(ctx)

	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req updateQtyReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err = h.service.UpdateQty(ctx, c.ID, itemID, req.Qty)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()
	r = r.WithContext(ctx)

	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err = h.service.RemoveItem(ctx, c.ID, itemID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ClearCart")
	defer span.End()
	r = r.WithContext(ctx)

	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err := h.service.Clear(ctx, c.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ApplyCoupon")
	defer span.End()
	r = r.WithContext(ctx)

	var req couponReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err := h.service.ApplyCoupon(ctx, c.ID, req.Code, httpx.UserID(r))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCoupon")
	defer span.End()
	r = r.WithContext(ctx)

	c, ok := h.current(w, r)
	if !ok {
		return
	}
	c, err := h.service.RemoveCoupon(ctx, c.ID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}
