package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type Status string

const (
	StatusLabelCreated   Status = "label_created"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
)

var transitions = map[Status][]Status{
	StatusLabelCreated:   {StatusInTransit, StatusFailed},
	StatusInTransit:      {StatusOutForDelivery, StatusFailed, StatusReturned},
	StatusOutForDelivery: {StatusDelivered, StatusFailed, StatusReturned},
	StatusDelivered:      {},
	StatusFailed:         {},
	StatusReturned:       {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Countable reports whether items in a shipment of this status count as
// shipped for order fulfillment.
func (s Status) Countable() bool {
	return s == StatusInTransit || s == StatusOutForDelivery || s == StatusDelivered
}

var codeStatus = map[string]Status{
	"label_created":    StatusLabelCreated,
	"pickup":           StatusInTransit,
	"in_transit":       StatusInTransit,
	"hub_scan":         StatusInTransit,
	"out_for_delivery": StatusOutForDelivery,
	"delivered":        StatusDelivered,
	"failed":           StatusFailed,
	"returned":         StatusReturned,
}

// StatusForCode maps a tracking event code to the shipment status it implies.
func StatusForCode(code string) (Status, bool) {
	s, ok := codeStatus[strings.ToLower(strings.TrimSpace(code))]
	return s, ok
}

type Shipment struct {
	ID             int64      `json:"id"`
	OrderID        int64      `json:"order_id"`
	CarrierID      *int64     `json:"carrier_id,omitempty"`
	TrackingNumber *string    `json:"tracking_number,omitempty"`
	Status         Status     `json:"status"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	Items          []Item     `json:"items"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Apply moves the shipment to status to. Reaching the current status again
// is not a change. shipped_at and delivered_at are set the first time the
// shipment gets there; failed and returned keep the reason.
func (s *Shipment) Apply(to Status, reason string, now time.Time) (bool, error) {
	if to == s.Status {
		return false, nil
	}
	if !s.Status.CanTransition(to) {
		return false, apperr.Conflict("shipment %d cannot move from %s to %s", s.ID, s.Status, to)
	}
	s.Status = to
	switch to {
	case StatusInTransit, StatusOutForDelivery:
		if s.ShippedAt == nil {
			s.ShippedAt = &now
		}
	case StatusDelivered:
		if s.ShippedAt == nil {
			s.ShippedAt = &now
		}
		if s.DeliveredAt == nil {
			s.DeliveredAt = &now
		}
	case StatusFailed, StatusReturned:
		if reason != "" {
			s.FailureReason = &reason
		}
	}
	return true, nil
}

func (s Shipment) Item(id int64) (int, bool) {
	for i, it := range s.Items {
		if it.ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s Shipment) ItemFor(orderItemID int64) (int, bool) {
	for i, it := range s.Items {
		if it.OrderItemID == orderItemID {
			return i, true
		}
	}
	return -1, false
}

type Item struct {
	ID          int64     `json:"id"`
	ShipmentID  int64     `json:"shipment_id"`
	OrderItemID int64     `json:"order_item_id"`
	Qty         int       `json:"qty"`
	ProductName string    `json:"product_name,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event is one carrier tracking update.
type Event struct {
	ID          int64     `json:"id"`
	ShipmentID  int64     `json:"shipment_id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	HappenedAt  time.Time `json:"happened_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// GuardQty checks that shipping qty units keeps the order item within its
// ordered quantity, given what other non-returned shipment lines carry.
func GuardQty(ordered, shipped, qty int) error {
	if qty < 1 {
		return apperr.Validation("shipment item qty must be at least 1")
	}
	remaining := ordered - shipped
	if remaining < 0 {
		remaining = 0
	}
	if qty > remaining {
		return apperr.Conflict("qty %d exceeds remaining to ship (%d)", qty, remaining)
	}
	return nil
}

// NewTrackingNumber returns an internal tracking number INT-YYYYMMDD-XXXXXX.
func NewTrackingNumber(now time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "INT-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(raw[:6])
}
