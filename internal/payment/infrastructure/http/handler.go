package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/payment/application"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxWebhookBody    = 1 << 20
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("payment-http")}
}

type startReq struct {
	Provider string `json:"provider" validate:"required"`
}

type refundReq struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"max=255"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders/{id}/payments", h.start)
	r.Post("/orders/{id}/payments/cod-confirm", h.confirmCOD)
	r.Get("/orders/{id}/payments", h.list)
	r.Post("/payments/{id}/refunds", h.refund)
	r.Get("/payments/{id}/refunds", h.refunds)
	r.Post("/webhooks/{provider}", h.webhook)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "StartPayment")
	defer span.End()

	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req startReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.String("payment.provider", req.Provider))

	res, err := h.service.Start(ctx, orderID, req.Provider)
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) confirmCOD(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmOfflinePayment")
	defer span.End()

	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	p, err := h.service.ConfirmOffline(ctx, orderID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	ps, err := h.service.Payments(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ps)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RefundPayment")
	defer span.End()

	paymentID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req refundReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("payment.id", paymentID), attribute.String("refund.amount", req.Amount.String()))

	refund, err := h.service.Refund(ctx, application.RefundInput{
		PaymentID:      paymentID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, refund)
}

func (h *Handler) refunds(w http.ResponseWriter, r *http.Request) {
	paymentID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	rs, err := h.service.Refunds(r.Context(), paymentID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rs)
}

// webhook acknowledges every delivery for a known provider with 200 so the
// provider stops retrying; failures are reported in the body and logged.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	provider := chi.URLParam(r, "provider")
	span.SetAttributes(attribute.String("payment.provider", provider))

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(w, h.log, apperr.Validation("unreadable webhook body"))
		return
	}
	res, err := h.service.HandleWebhook(ctx, provider, r.Header, payload)
	switch {
	case apperr.IsNotFound(err):
		httpx.WriteError(w, h.log, err)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook processing failed")
		h.log.Error("webhook processing failed", "provider", provider, "err", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": res.Ignored, "kind": res.Kind})
	}
}
