package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type Product struct {
	ID       int64
	Name     string
	SKU      string
	Price    decimal.Decimal
	IsActive bool
}

type Variant struct {
	ID        int64
	ProductID int64
	SKU       *string
	Price     decimal.NullDecimal
	Stock     int
}

// Snapshot is the price, name and sku frozen onto a cart line.
type Snapshot struct {
	Name  string
	SKU   string
	Price decimal.Decimal
}

func SnapshotOf(p Product, v *Variant) (Snapshot, error) {
	s := Snapshot{Name: p.Name, SKU: p.SKU, Price: p.Price}
	if v == nil {
		return s, nil
	}
	if v.ProductID != p.ID {
		return Snapshot{}, apperr.NotFound("variant")
	}
	if v.Price.Valid {
		s.Price = v.Price.Decimal
	}
	if v.SKU != nil && *v.SKU != "" {
		s.SKU = *v.SKU
		s.Name = fmt.Sprintf("%s (%s)", p.Name, *v.SKU)
	}
	return s, nil
}
