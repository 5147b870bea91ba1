package memory

import (
	"cmp"
	"context"
	"slices"

	invoiceapp "github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	invoicedomain "github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type InvoiceRepository struct{ s *Store }

func NewInvoiceRepository(s *Store) *InvoiceRepository { return &InvoiceRepository{s: s} }

func (r *InvoiceRepository) Order(ctx context.Context, orderID int64) (invoiceapp.OrderView, error) {
	var out invoiceapp.OrderView
	err := r.s.read(ctx, func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return apperr.NotFound("order")
		}
		out = invoiceapp.OrderView{ID: o.ID, Currency: o.Currency, Items: orderItems(t, o.ID)}
		return nil
	})
	return out, err
}

func (r *InvoiceRepository) LockOrder(ctx context.Context, orderID int64) (invoiceapp.OrderView, error) {
	return r.Order(ctx, orderID)
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoicedomain.Invoice) error {
	return r.s.write(ctx, "invoice.create", func(t *tables) error {
		for _, existing := range t.invoices {
			if existing.Number == inv.Number {
				return apperr.Duplicate("invoice number")
			}
		}
		inv.ID = t.next("invoices")
		row := *inv
		row.Items = nil
		t.invoices[inv.ID] = row
		return nil
	})
}

func (r *InvoiceRepository) Get(ctx context.Context, id int64) (invoicedomain.Invoice, error) {
	var out invoicedomain.Invoice
	err := r.s.read(ctx, func(t *tables) error {
		inv, ok := t.invoices[id]
		if !ok {
			return apperr.NotFound("invoice")
		}
		out = withInvoiceItems(t, inv)
		return nil
	})
	return out, err
}

func (r *InvoiceRepository) Lock(ctx context.Context, id int64) (invoicedomain.Invoice, error) {
	return r.Get(ctx, id)
}

func (r *InvoiceRepository) ListByOrder(ctx context.Context, orderID int64) ([]invoicedomain.Invoice, error) {
	var out []invoicedomain.Invoice
	err := r.s.read(ctx, func(t *tables) error {
		for _, inv := range t.invoices {
			if inv.OrderID == orderID {
				out = append(out, withInvoiceItems(t, inv))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b invoicedomain.Invoice) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *InvoiceRepository) Save(ctx context.Context, inv invoicedomain.Invoice) error {
	return r.s.write(ctx, "invoice.save", func(t *tables) error {
		if _, ok := t.invoices[inv.ID]; !ok {
			return apperr.NotFound("invoice")
		}
		inv.Items = nil
		t.invoices[inv.ID] = inv
		return nil
	})
}

func (r *InvoiceRepository) InsertItem(ctx context.Context, it *invoicedomain.Item) error {
	return r.s.write(ctx, "invoice.insert_item", func(t *tables) error {
		for _, existing := range t.invoiceItems {
			if existing.InvoiceID == it.InvoiceID && existing.OrderItemID == it.OrderItemID {
				return apperr.Duplicate("invoice item")
			}
		}
		it.ID = t.next("invoice_items")
		t.invoiceItems[it.ID] = *it
		return nil
	})
}

func (r *InvoiceRepository) UpdateItem(ctx context.Context, it invoicedomain.Item) error {
	return r.s.write(ctx, "invoice.update_item", func(t *tables) error {
		if _, ok := t.invoiceItems[it.ID]; !ok {
			return apperr.NotFound("invoice item")
		}
		t.invoiceItems[it.ID] = it
		return nil
	})
}

func (r *InvoiceRepository) InvoicedQty(ctx context.Context, orderItemID, excludeID int64) (int, error) {
	n := 0
	err := r.s.read(ctx, func(t *tables) error {
		for _, it := range t.invoiceItems {
			if it.OrderItemID == orderItemID && it.ID != excludeID {
				n += it.Qty
			}
		}
		return nil
	})
	return n, err
}

func (r *InvoiceRepository) PaymentInvoice(ctx context.Context, paymentID int64) (*int64, error) {
	var out *int64
	err := r.s.read(ctx, func(t *tables) error {
		p, ok := t.payments[paymentID]
		if !ok {
			return apperr.NotFound("payment")
		}
		out = p.InvoiceID
		return nil
	})
	return out, err
}

func (r *InvoiceRepository) LinkPayment(ctx context.Context, paymentID, invoiceID int64) error {
	return r.s.write(ctx, "invoice.link_payment", func(t *tables) error {
		p, ok := t.payments[paymentID]
		if !ok {
			return apperr.NotFound("payment")
		}
		p.InvoiceID = ptr(invoiceID)
		t.payments[paymentID] = p
		return nil
	})
}

func withInvoiceItems(t *tables, inv invoicedomain.Invoice) invoicedomain.Invoice {
	inv.Items = nil
	for _, it := range t.invoiceItems {
		if it.InvoiceID == inv.ID {
			inv.Items = append(inv.Items, it)
		}
	}
	slices.SortFunc(inv.Items, func(a, b invoicedomain.Item) int { return cmp.Compare(a.ID, b.ID) })
	return inv
}
