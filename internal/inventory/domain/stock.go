package domain

import "github.com/dmehra2102/commerce-backoffice/pkg/apperr"

// VariantStock is the denormalized on-hand counter kept on a variant.
type VariantStock struct {
	VariantID int64
	ProductID int64
	Stock     int
}

type Adjustment struct {
	VariantID int64  `json:"variant_id"`
	Delta     int    `json:"delta"`
	Note      string `json:"note"`
	UserID    *int64 `json:"user_id,omitempty"`
}

// Apply returns the counter after the adjustment. The counter may never go
// negative.
func (a Adjustment) Apply(before int) (int, error) {
	if a.Delta == 0 {
		return 0, apperr.Validation("adjustment delta must be non-zero")
	}
	after := before + a.Delta
	if after < 0 {
		return 0, apperr.Conflict("adjustment would drive stock negative (%d%+d)", before, a.Delta)
	}
	return after, nil
}

// Availability derives sellable stock from the on-hand counter and the
// reservations still outstanding in the ledger.
type Availability struct {
	ProductID   int64  `json:"product_id"`
	VariantID   *int64 `json:"variant_id,omitempty"`
	OnHand      int    `json:"on_hand"`
	Outstanding int    `json:"outstanding_reservations"`
	Available   int    `json:"available"`
}

func NewAvailability(productID int64, variantID *int64, onHand, reservationSum int) Availability {
	outstanding := -reservationSum
	if outstanding < 0 {
		outstanding = 0
	}
	return Availability{
		ProductID:   productID,
		VariantID:   variantID,
		OnHand:      onHand,
		Outstanding: outstanding,
		Available:   onHand - outstanding,
	}
}
