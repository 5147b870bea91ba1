package application

import (
	"context"

	"github.com/dmehra2102/commerce-backoffice/internal/inventory/domain"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	InsertMovement(ctx context.Context, m *domain.Movement) error
	// SumChange adds up the signed changes recorded for ref on the
	// product/variant with the given reason.
	SumChange(ctx context.Context, ref domain.Reference, productID int64, variantID *int64, reason domain.Reason) (int, error)
	ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.Movement, error)
	// OrderLines returns the ordered quantity per order item.
	OrderLines(ctx context.Context, orderID int64) ([]domain.Line, error)
	LockVariant(ctx context.Context, variantID int64) (domain.VariantStock, error)
	SetVariantStock(ctx context.Context, variantID int64, stock int) error
	OnHand(ctx context.Context, productID int64, variantID *int64) (int, error)
	// ReservationBalance is the signed sum of order_reserved and
	// order_cancelled changes across all orders for the product/variant.
	ReservationBalance(ctx context.Context, productID int64, variantID *int64) (int, error)
}
