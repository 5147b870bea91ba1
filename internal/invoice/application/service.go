package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

var ErrNothingToInvoice = apperr.New(apperr.CodeStateConflict, "nothing left to invoice")

const numberAttempts = 5

type Service struct {
	log  *slog.Logger
	tx   Transactor
	repo Repository
	now  func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo Repository) *Service {
	return &Service{log: log, tx: tx, repo: repo, now: time.Now}
}

type CreateInput struct {
	OrderID       int64
	Lines         []domain.Line
	Draft         bool
	Notes         string
	ShippingTotal decimal.Decimal
	DueAt         *time.Time
}

// CreateFromOrder bills the given lines of an order, or every remaining
// quantity when no lines are passed.
func (s *Service) CreateFromOrder(ctx context.Context, in CreateInput) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.create(ctx, in)
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	s.log.Info("invoice created", "order_id", in.OrderID, "invoice_id", inv.ID, "invoice_no", inv.Number, "grand_total", inv.GrandTotal.StringFixed(2))
	return inv, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (domain.Invoice, error) {
	o, err := s.repo.LockOrder(ctx, in.OrderID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := validateLines(o, in.Lines); err != nil {
		return domain.Invoice{}, err
	}

	lines := in.Lines
	if len(lines) == 0 {
		lines, err = s.remainingLines(ctx, o)
		if err != nil {
			return domain.Invoice{}, err
		}
		if len(lines) == 0 {
			return domain.Invoice{}, ErrNothingToInvoice
		}
	}

	now := s.now().UTC()
	inv := domain.Invoice{
		OrderID:       o.ID,
		Status:        domain.StatusIssued,
		Currency:      o.Currency,
		ShippingTotal: money.Round(money.NonNegative(in.ShippingTotal)),
		Notes:         in.Notes,
		DueAt:         in.DueAt,
		IssuedAt:      &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Draft {
		inv.Status = domain.StatusDraft
		inv.IssuedAt = nil
	}
	if err := s.createWithNumber(ctx, &inv); err != nil {
		return domain.Invoice{}, err
	}
	if err := s.addLines(ctx, o, &inv, lines); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

func (s *Service) createWithNumber(ctx context.Context, inv *domain.Invoice) error {
	var err error
	for i := 0; i < numberAttempts; i++ {
		inv.Number = domain.NewNumber(inv.CreatedAt)
		err = s.repo.Create(ctx, inv)
		if !apperr.IsDuplicate(err) {
			return err
		}
		s.log.Warn("invoice number collision", "invoice_no", inv.Number, "attempt", i+1)
	}
	return err
}

func (s *Service) AddItems(ctx context.Context, invoiceID int64, lines []domain.Line) (domain.Invoice, error) {
	if len(lines) == 0 {
		return domain.Invoice{}, apperr.Validation("at least one line is required")
	}
	var inv domain.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Lock(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.Editable() {
			return apperr.Conflict("invoice %s is %s and cannot be changed", inv.Number, inv.Status)
		}
		o, err := s.repo.LockOrder(ctx, inv.OrderID)
		if err != nil {
			return err
		}
		if err := validateLines(o, lines); err != nil {
			return err
		}
		return s.addLines(ctx, o, &inv, lines)
	})
	return inv, err
}

func (s *Service) UpdateItemQty(ctx context.Context, invoiceID, itemID int64, qty int) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Lock(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.Editable() {
			return apperr.Conflict("invoice %s is %s and cannot be changed", inv.Number, inv.Status)
		}
		idx, ok := inv.Item(itemID)
		if !ok {
			return apperr.NotFound("invoice item")
		}
		o, err := s.repo.LockOrder(ctx, inv.OrderID)
		if err != nil {
			return err
		}
		it := &inv.Items[idx]
		oi, _ := orderItem(o, it.OrderItemID)
		invoiced, err := s.repo.InvoicedQty(ctx, it.OrderItemID, it.ID)
		if err != nil {
			return err
		}
		if err := domain.GuardQty(oi.Qty, invoiced, qty); err != nil {
			return err
		}
		it.Qty = qty
		it.ApplyDiscount(it.DiscountAmount)
		it.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateItem(ctx, *it); err != nil {
			return err
		}
		return s.save(ctx, &inv)
	})
	return inv, err
}

// addLines bills each line, merging into an existing line for the same order
// item, then recomputes and saves the invoice.
func (s *Service) addLines(ctx context.Context, o OrderView, inv *domain.Invoice, lines []domain.Line) error {
	now := s.now().UTC()
	for _, l := range lines {
		oi, _ := orderItem(o, l.OrderItemID)
		if idx, ok := inv.ItemFor(l.OrderItemID); ok {
			it := &inv.Items[idx]
			invoiced, err := s.repo.InvoicedQty(ctx, oi.ID, it.ID)
			if err != nil {
				return err
			}
			if err := domain.GuardQty(oi.Qty, invoiced, it.Qty+l.Qty); err != nil {
				return err
			}
			it.Qty += l.Qty
			it.TaxAmount = it.TaxAmount.Add(money.NonNegative(l.Tax))
			it.ApplyDiscount(it.DiscountAmount.Add(money.NonNegative(l.Discount)))
			it.UpdatedAt = now
			if err := s.repo.UpdateItem(ctx, *it); err != nil {
				return err
			}
			continue
		}

		invoiced, err := s.repo.InvoicedQty(ctx, oi.ID, 0)
		if err != nil {
			return err
		}
		if err := domain.GuardQty(oi.Qty, invoiced, l.Qty); err != nil {
			return err
		}
		it := domain.NewItem(oi, l.Qty)
		it.InvoiceID = inv.ID
		it.TaxAmount = money.Round(money.NonNegative(l.Tax))
		it.ApplyDiscount(l.Discount)
		it.CreatedAt, it.UpdatedAt = now, now
		if err := s.repo.InsertItem(ctx, &it); err != nil {
			return err
		}
		inv.Items = append(inv.Items, it)
	}
	return s.save(ctx, inv)
}

func (s *Service) save(ctx context.Context, inv *domain.Invoice) error {
	inv.Recalculate()
	inv.UpdatedAt = s.now().UTC()
	return s.repo.Save(ctx, *inv)
}

func (s *Service) remainingLines(ctx context.Context, o OrderView) ([]domain.Line, error) {
	var lines []domain.Line
	for _, oi := range o.Items {
		invoiced, err := s.repo.InvoicedQty(ctx, oi.ID, 0)
		if err != nil {
			return nil, err
		}
		if left := oi.Qty - invoiced; left > 0 {
			lines = append(lines, domain.Line{OrderItemID: oi.ID, Qty: left})
		}
	}
	return lines, nil
}

func (s *Service) Issue(ctx context.Context, id int64) (domain.Invoice, error) {
	return s.mutate(ctx, id, func(inv *domain.Invoice) error { return inv.Issue(s.now().UTC()) })
}

// MarkPaid marks the invoice paid and, when given, links the payment to it.
func (s *Service) MarkPaid(ctx context.Context, id int64, paymentID *int64) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.markPaid(ctx, id, paymentID)
		return err
	})
	return inv, err
}

func (s *Service) markPaid(ctx context.Context, id int64, paymentID *int64) (domain.Invoice, error) {
	inv, err := s.repo.Lock(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := inv.MarkPaid(s.now().UTC()); err != nil {
		return domain.Invoice{}, err
	}
	inv.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, inv); err != nil {
		return domain.Invoice{}, err
	}
	if paymentID == nil {
		return inv, nil
	}
	linked, err := s.repo.PaymentInvoice(ctx, *paymentID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if linked == nil {
		if err := s.repo.LinkPayment(ctx, *paymentID, inv.ID); err != nil {
			return domain.Invoice{}, err
		}
	}
	return inv, nil
}

func (s *Service) Void(ctx context.Context, id int64) (domain.Invoice, error) {
	return s.mutate(ctx, id, func(inv *domain.Invoice) error { return inv.Void() })
}

func (s *Service) MarkRefunded(ctx context.Context, id int64) (domain.Invoice, error) {
	return s.mutate(ctx, id, func(inv *domain.Invoice) error { return inv.MarkRefunded() })
}

func (s *Service) mutate(ctx context.Context, id int64, fn func(inv *domain.Invoice) error) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&inv); err != nil {
			return err
		}
		inv.UpdatedAt = s.now().UTC()
		return s.repo.Save(ctx, inv)
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	s.log.Info("invoice status changed", "invoice_id", inv.ID, "status", inv.Status)
	return inv, nil
}

// BillPayment invoices whatever is left on the order and marks the invoice
// paid against the payment. A payment that already has an invoice, or an
// order with nothing left to bill, is a no-op reported as billed=false.
func (s *Service) BillPayment(ctx context.Context, orderID, paymentID int64) (inv domain.Invoice, billed bool, err error) {
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		linked, err := s.repo.PaymentInvoice(ctx, paymentID)
		if err != nil {
			return err
		}
		if linked != nil {
			return nil
		}
		created, err := s.create(ctx, CreateInput{OrderID: orderID})
		if errors.Is(err, ErrNothingToInvoice) {
			return nil
		}
		if err != nil {
			return err
		}
		inv, err = s.markPaid(ctx, created.ID, &paymentID)
		billed = err == nil
		return err
	})
	if err != nil {
		return domain.Invoice{}, false, err
	}
	return inv, billed, nil
}

func (s *Service) Invoiceable(ctx context.Context, orderID int64) ([]domain.Remaining, error) {
	o, err := s.repo.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Remaining, 0, len(o.Items))
	for _, oi := range o.Items {
		invoiced, err := s.repo.InvoicedQty(ctx, oi.ID, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NewRemaining(oi, invoiced))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Invoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByOrder(ctx context.Context, orderID int64) ([]domain.Invoice, error) {
	if _, err := s.repo.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListByOrder(ctx, orderID)
}

func validateLines(o OrderView, lines []domain.Line) error {
	for _, l := range lines {
		if l.Qty < 1 {
			return apperr.Validation("line for order item %d: qty must be at least 1", l.OrderItemID)
		}
		if _, ok := orderItem(o, l.OrderItemID); !ok {
			return apperr.Validation("order item %d does not belong to order %d", l.OrderItemID, o.ID)
		}
	}
	return nil
}

func orderItem(o OrderView, id int64) (orderdomain.Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return orderdomain.Item{}, false
}
