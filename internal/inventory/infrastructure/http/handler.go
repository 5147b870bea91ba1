package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/inventory/application"
	"github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("inventory-http")}
}

type adjustReq struct {
	VariantID int64  `json:"variant_id" validate:"required,gt=0"`
	Delta     int    `json:"delta"`
	Note      string `json:"note" validate:"max=500"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/movements", h.movements)
		r.Post("/adjustments", h.adjust)
		r.Get("/availability", h.availability)
	})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMovements")
	defer span.End()

	q := r.URL.Query()
	var f domain.MovementFilter
	var err error
	if f.ProductID, err = optionalID(q.Get("product_id"), "product_id"); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if f.VariantID, err = optionalID(q.Get("variant_id"), "variant_id"); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	f.Reason = domain.Reason(q.Get("reason"))
	if raw := q.Get("reference"); raw != "" {
		ref, err := domain.ParseReference(raw)
		if err != nil {
			httpx.WriteError(w, h.log, err)
			return
		}
		f.Ref = &ref
	}
	if raw := q.Get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}

	ms, err := h.service.Movements(ctx, f)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ms)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdjustStock")
	defer span.End()

	var req adjustReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	m, err := h.service.Adjust(ctx, domain.Adjustment{
		VariantID: req.VariantID,
		Delta:     req.Delta,
		Note:      req.Note,
		UserID:    httpx.UserID(r),
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Availability")
	defer span.End()

	q := r.URL.Query()
	productID, err := optionalID(q.Get("product_id"), "product_id")
	if err == nil && productID == nil {
		err = apperr.Validation("product_id is required")
	}
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	variantID, err := optionalID(q.Get("variant_id"), "variant_id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	a, err := h.service.Availability(ctx, *productID, variantID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func optionalID(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &id, nil
}
