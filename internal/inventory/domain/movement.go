package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type Reason string

const (
	ReasonOrderReserved    Reason = "order_reserved"
	ReasonOrderCancelled   Reason = "order_cancelled"
	ReasonOrderShipped     Reason = "order_shipped"
	ReasonManualAdjustment Reason = "manual_adjustment"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonOrderReserved, ReasonOrderCancelled, ReasonOrderShipped, ReasonManualAdjustment:
		return true
	}
	return false
}

type RefKind string

const (
	RefOrder    RefKind = "order"
	RefShipment RefKind = "shipment"
	RefAdmin    RefKind = "admin"
)

func (k RefKind) Valid() bool {
	switch k {
	case RefOrder, RefShipment, RefAdmin:
		return true
	}
	return false
}

// Reference names the entity that caused a movement.
type Reference struct {
	Kind RefKind `json:"kind"`
	ID   int64   `json:"id"`
}

func OrderRef(id int64) Reference { return Reference{Kind: RefOrder, ID: id} }

func AdminRef(userID int64) Reference { return Reference{Kind: RefAdmin, ID: userID} }

func (r Reference) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

// ParseReference reads the "kind:id" form produced by String.
func ParseReference(s string) (Reference, error) {
	kind, id, ok := strings.Cut(s, ":")
	n, err := strconv.ParseInt(id, 10, 64)
	if !ok || err != nil || !RefKind(kind).Valid() {
		return Reference{}, apperr.Validation("invalid reference %q", s)
	}
	return Reference{Kind: RefKind(kind), ID: n}, nil
}

type Movement struct {
	ID          int64      `json:"id"`
	ProductID   int64      `json:"product_id"`
	VariantID   *int64     `json:"variant_id,omitempty"`
	Change      int        `json:"change"`
	Reason      Reason     `json:"reason"`
	Ref         *Reference `json:"reference,omitempty"`
	UserID      *int64     `json:"user_id,omitempty"`
	StockBefore *int       `json:"stock_before,omitempty"`
	StockAfter  *int       `json:"stock_after,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (m Movement) Validate() error {
	if m.Change == 0 {
		return apperr.Validation("movement change must be non-zero")
	}
	if !m.Reason.Valid() {
		return apperr.Validation("unknown movement reason %q", m.Reason)
	}
	if m.Ref != nil && !m.Ref.Kind.Valid() {
		return apperr.Validation("unknown reference kind %q", m.Ref.Kind)
	}
	switch m.Reason {
	case ReasonOrderReserved, ReasonOrderShipped:
		if m.Change > 0 {
			return apperr.Validation("%s movement must be negative", m.Reason)
		}
	case ReasonOrderCancelled:
		if m.Change < 0 {
			return apperr.Validation("%s movement must be positive", m.Reason)
		}
	}
	return nil
}

// Line is one product/variant quantity on an order.
type Line struct {
	ProductID int64
	VariantID *int64
	Qty       int
}

// ReserveShortfall is how much of an ordered quantity still needs reserving
// given the signed sum of earlier order_reserved movements.
func ReserveShortfall(ordered, reservedSum int) int {
	return ordered - abs(reservedSum)
}

// ReleaseShortfall is how much reserved stock has not yet been returned.
func ReleaseShortfall(reservedSum, returnedSum int) int {
	return abs(reservedSum) - returnedSum
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type MovementFilter struct {
	ProductID *int64
	VariantID *int64
	Reason    Reason
	Ref       *Reference
	Limit     int
}
