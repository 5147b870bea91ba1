package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/shipment/application"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("shipment-http")}
}

type createReq struct {
	CarrierID      *int64                  `json:"carrier_id" validate:"omitempty,gt=0"`
	TrackingNumber string                  `json:"tracking_number" validate:"max=64"`
	Items          []application.ItemInput `json:"items" validate:"dive"`
}

type qtyReq struct {
	Qty int `json:"qty"`
}

type eventReq struct {
	Code        string     `json:"code" validate:"required"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	HappenedAt  *time.Time `json:"happened_at"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/orders/{id}/shipments", h.create)
	r.Get("/orders/{id}/shipments", h.listByOrder)
	r.Route("/shipments/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/items", h.addItem)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
		r.Post("/events", h.recordEvent)
		r.Get("/events", h.events)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateShipment")
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
	sh, err := h.service.Create(ctx, application.CreateInput{
		OrderID:        orderID,
		CarrierID:      req.CarrierID,
		TrackingNumber: req.TrackingNumber,
		Items:          req.Items,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("shipment.id", sh.ID))
	httpx.WriteJSON(w, http.StatusCreated, sh)
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

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	sh, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddShipmentItem")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req application.ItemInput
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	sh, err := h.service.AddItem(ctx, id, req.OrderItemID, req.Qty)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateShipmentItem")
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
	sh, err := h.service.UpdateItemQty(ctx, id, itemID, req.Qty)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveShipmentItem")
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
	sh, err := h.service.RemoveItem(ctx, id, itemID)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RecordShipmentEvent")
	defer span.End()

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	var req eventReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("shipment.id", id), attribute.String("shipment.event_code", req.Code))

	sh, err := h.service.RecordEvent(ctx, id, application.EventInput{
		Code:        req.Code,
		Description: req.Description,
		Location:    req.Location,
		HappenedAt:  req.HappenedAt,
	})
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	evs, err := h.service.Events(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, evs)
}
