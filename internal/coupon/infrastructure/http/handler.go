package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/coupon/application"
	"github.com/dmehra2102/commerce-backoffice/internal/coupon/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("coupon-http")}
}

type createCouponReq struct {
	Code           string              `json:"code" validate:"required"`
	Type           domain.Type         `json:"type" validate:"required,oneof=percent amount free_shipping"`
	Value          decimal.Decimal     `json:"value"`
	MaxDiscount    decimal.NullDecimal `json:"max_discount"`
	MinCartTotal   decimal.NullDecimal `json:"min_cart_total"`
	MinItemsCount  *int                `json:"min_items_count" validate:"omitempty,gte=0"`
	MaxUses        *int                `json:"max_uses" validate:"omitempty,gte=0"`
	MaxUsesPerUser *int                `json:"max_uses_per_user" validate:"omitempty,gte=0"`
	StartAt        *time.Time          `json:"start_at"`
	EndAt          *time.Time          `json:"end_at"`
	IsActive       *bool               `json:"is_active"`
}

type previewReq struct {
	Code      string          `json:"code" validate:"required"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count" validate:"gte=0"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/coupons", h.create)
	r.Post("/coupons/preview", h.preview)
	r.Get("/coupons/{id}", h.get)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateCoupon")
	defer span.End()

	var req createCouponReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c := domain.Coupon{
		Code:           req.Code,
		Type:           req.Type,
		Value:          req.Value,
		MaxDiscount:    req.MaxDiscount,
		MinCartTotal:   req.MinCartTotal,
		MinItemsCount:  req.MinItemsCount,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	c, err := h.service.Create(ctx, c)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PreviewCoupon")
	defer span.End()

	var req previewReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	p, err := h.service.Preview(ctx, req.Code, domain.Basket{Subtotal: req.Subtotal, ItemCount: req.ItemCount}, httpx.UserID(r))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}
