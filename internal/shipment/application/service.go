package application

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/shipment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

const trackingAttempts = 5

type Service struct {
	log    *slog.Logger
	tx     Transactor
	repo   Repository
	events outbox.Recorder
	now    func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo Repository, events outbox.Recorder) *Service {
	return &Service{log: log, tx: tx, repo: repo, events: events, now: time.Now}
}

type ItemInput struct {
	OrderItemID int64 `json:"order_item_id" validate:"required"`
	Qty         int   `json:"qty"`
}

type CreateInput struct {
	OrderID        int64
	CarrierID      *int64
	TrackingNumber string
	Items          []ItemInput
}

type EventInput struct {
	Code        string
	Description string
	Location    string
	HappenedAt  *time.Time
}

// Create opens a shipment in label_created for the order, optionally with
// its first items. Without a tracking number an internal one is generated.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Shipment, error) {
	var sh domain.Shipment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if o.Status == orderdomain.StatusCancelled {
			return apperr.Conflict("order %d is cancelled", o.ID)
		}

		now := s.now().UTC()
		sh = domain.Shipment{
			OrderID:   o.ID,
			CarrierID: in.CarrierID,
			Status:    domain.StatusLabelCreated,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if tn := strings.TrimSpace(in.TrackingNumber); tn != "" {
			sh.TrackingNumber = &tn
			if err := s.repo.Create(ctx, &sh); err != nil {
				return err
			}
		} else if err := s.createWithTracking(ctx, &sh); err != nil {
			return err
		}

		for _, item := range in.Items {
			if err := s.addItem(ctx, o, &sh, item.OrderItemID, item.Qty); err != nil {
				return err
			}
		}
		_, err = s.refreshFulfillment(ctx, o)
		return err
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	s.log.Info("shipment created", "order_id", sh.OrderID, "shipment_id", sh.ID, "tracking", deref(sh.TrackingNumber))
	return sh, nil
}

func (s *Service) createWithTracking(ctx context.Context, sh *domain.Shipment) error {
	var err error
	for i := 0; i < trackingAttempts; i++ {
		tn := domain.NewTrackingNumber(sh.CreatedAt)
		sh.TrackingNumber = &tn
		err = s.repo.Create(ctx, sh)
		if !apperr.IsDuplicate(err) {
			return err
		}
	}
	return err
}

func (s *Service) AddItem(ctx context.Context, shipmentID, orderItemID int64, qty int) (domain.Shipment, error) {
	return s.withShipment(ctx, shipmentID, func(ctx context.Context, o OrderView, sh *domain.Shipment) error {
		if err := s.addItem(ctx, o, sh, orderItemID, qty); err != nil {
			return err
		}
		_, err := s.refreshFulfillment(ctx, o)
		return err
	})
}

// addItem ships qty more units of an order item, merging into the
// shipment's existing line for it.
func (s *Service) addItem(ctx context.Context, o OrderView, sh *domain.Shipment, orderItemID int64, qty int) error {
	if sh.Status.IsTerminal() {
		return apperr.Conflict("shipment %d is %s", sh.ID, sh.Status)
	}
	if qty < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	oi, ok := o.Item(orderItemID)
	if !ok {
		return apperr.Validation("order item %d does not belong to order %d", orderItemID, o.ID)
	}

	now := s.now().UTC()
	if idx, ok := sh.ItemFor(orderItemID); ok {
		it := &sh.Items[idx]
		shipped, err := s.repo.ShippedQty(ctx, oi.ID, it.ID)
		if err != nil {
			return err
		}
		if err := domain.GuardQty(oi.Qty, shipped, it.Qty+qty); err != nil {
			return err
		}
		it.Qty += qty
		it.UpdatedAt = now
		return s.repo.UpdateItem(ctx, *it)
	}

	shipped, err := s.repo.ShippedQty(ctx, oi.ID, 0)
	if err != nil {
		return err
	}
	if err := domain.GuardQty(oi.Qty, shipped, qty); err != nil {
		return err
	}
	it := domain.Item{
		ShipmentID:  sh.ID,
		OrderItemID: oi.ID,
		Qty:         qty,
		ProductName: oi.Name,
		SKU:         oi.SKU,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertItem(ctx, &it); err != nil {
		return err
	}
	sh.Items = append(sh.Items, it)
	return nil
}

func (s *Service) UpdateItemQty(ctx context.Context, shipmentID, itemID int64, qty int) (domain.Shipment, error) {
	return s.withShipment(ctx, shipmentID, func(ctx context.Context, o OrderView, sh *domain.Shipment) error {
		if sh.Status.IsTerminal() {
			return apperr.Conflict("shipment %d is %s", sh.ID, sh.Status)
		}
		idx, ok := sh.Item(itemID)
		if !ok {
			return apperr.NotFound("shipment item")
		}
		it := &sh.Items[idx]
		oi, _ := o.Item(it.OrderItemID)
		shipped, err := s.repo.ShippedQty(ctx, it.OrderItemID, it.ID)
		if err != nil {
			return err
		}
		if err := domain.GuardQty(oi.Qty, shipped, qty); err != nil {
			return err
		}
		it.Qty = qty
		it.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateItem(ctx, *it); err != nil {
			return err
		}
		_, err = s.refreshFulfillment(ctx, o)
		return err
	})
}

func (s *Service) RemoveItem(ctx context.Context, shipmentID, itemID int64) (domain.Shipment, error) {
	return s.withShipment(ctx, shipmentID, func(ctx context.Context, o OrderView, sh *domain.Shipment) error {
		if sh.Status.IsTerminal() {
			return apperr.Conflict("shipment %d is %s", sh.ID, sh.Status)
		}
		idx, ok := sh.Item(itemID)
		if !ok {
			return apperr.NotFound("shipment item")
		}
		if err := s.repo.DeleteItem(ctx, sh.ID, itemID); err != nil {
			return err
		}
		sh.Items = append(sh.Items[:idx], sh.Items[idx+1:]...)
		_, err := s.refreshFulfillment(ctx, o)
		return err
	})
}

// RecordEvent stores a tracking event and moves the shipment to the status
// its code maps to. An event for the current status is kept without a
// transition.
func (s *Service) RecordEvent(ctx context.Context, shipmentID int64, in EventInput) (domain.Shipment, error) {
	to, ok := domain.StatusForCode(in.Code)
	if !ok {
		return domain.Shipment{}, apperr.Validation("unknown shipment event code %q", in.Code)
	}
	return s.withShipment(ctx, shipmentID, func(ctx context.Context, o OrderView, sh *domain.Shipment) error {
		now := s.now().UTC()
		happened := now
		if in.HappenedAt != nil {
			happened = in.HappenedAt.UTC()
		}
		from := sh.Status
		changed, err := sh.Apply(to, in.Description, happened)
		if err != nil {
			return err
		}
		ev := domain.Event{
			ShipmentID:  sh.ID,
			Code:        strings.ToLower(strings.TrimSpace(in.Code)),
			Description: in.Description,
			Location:    in.Location,
			HappenedAt:  happened,
			CreatedAt:   now,
		}
		if err := s.repo.InsertEvent(ctx, &ev); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		sh.UpdatedAt = now
		if err := s.repo.Save(ctx, *sh); err != nil {
			return err
		}
		fulfilled, err := s.refreshFulfillment(ctx, o)
		if err != nil {
			return err
		}
		s.log.Info("shipment status changed", "shipment_id", sh.ID, "from", from, "to", to)
		return s.record(ctx, domain.ShipmentStatusChanged{
			ShipmentID:        sh.ID,
			OrderID:           sh.OrderID,
			From:              from,
			To:                to,
			EventCode:         ev.Code,
			FulfillmentStatus: fulfilled,
		})
	})
}

// Transition moves the shipment directly to status to, recording an event
// with the status as its code.
func (s *Service) Transition(ctx context.Context, shipmentID int64, to domain.Status, description string) (domain.Shipment, error) {
	if !to.Valid() {
		return domain.Shipment{}, apperr.Validation("unknown shipment status %q", to)
	}
	return s.RecordEvent(ctx, shipmentID, EventInput{Code: string(to), Description: description})
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Shipment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]domain.Shipment, error) {
	if _, err := s.repo.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

func (s *Service) Events(ctx context.Context, shipmentID int64) ([]domain.Event, error) {
	if _, err := s.repo.Get(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, shipmentID)
}

// withShipment runs fn with the order and then the shipment locked, always
// in that order.
func (s *Service) withShipment(ctx context.Context, shipmentID int64, fn func(ctx context.Context, o OrderView, sh *domain.Shipment) error) (domain.Shipment, error) {
	var sh domain.Shipment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		head, err := s.repo.Get(ctx, shipmentID)
		if err != nil {
			return err
		}
		o, err := s.repo.LockOrder(ctx, head.OrderID)
		if err != nil {
			return err
		}
		sh, err = s.repo.Lock(ctx, shipmentID)
		if err != nil {
			return err
		}
		return fn(ctx, o, &sh)
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	return sh, nil
}

// refreshFulfillment recomputes the order fulfillment status from shipped
// quantities and stores it when it changed.
func (s *Service) refreshFulfillment(ctx context.Context, o OrderView) (orderdomain.FulfillmentStatus, error) {
	shipped, err := s.repo.CountableShippedQty(ctx, o.ID)
	if err != nil {
		return "", err
	}
	ordered := 0
	for _, it := range o.Items {
		ordered += it.Qty
	}
	status := orderdomain.DeriveFulfillment(ordered, shipped)
	if status == o.FulfillmentStatus {
		return status, nil
	}
	return status, s.repo.SetFulfillment(ctx, o.ID, status)
}

func (s *Service) record(ctx context.Context, payload domain.ShipmentStatusChanged) error {
	e, err := outbox.NewEvent("shipment", strconv.FormatInt(payload.OrderID, 10), domain.EventShipmentStatusChanged, payload)
	if err != nil {
		return err
	}
	e.Traceparent = tracing.Traceparent(ctx)
	return s.events.Record(ctx, e)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
