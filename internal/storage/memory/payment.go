package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	paymentapp "github.com/dmehra2102/commerce-backoffice/internal/payment/application"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/money"
)

type PaymentRepository struct{ s *Store }

func NewPaymentRepository(s *Store) *PaymentRepository { return &PaymentRepository{s: s} }

func (r *PaymentRepository) Order(ctx context.Context, orderID int64) (paymentapp.OrderView, error) {
	var out paymentapp.OrderView
	err := r.s.read(ctx, func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return apperr.NotFound("order")
		}
		out = paymentapp.OrderView{
			ID:            o.ID,
			Number:        o.Number,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			GrandTotal:    o.GrandTotal,
			Currency:      o.Currency,
		}
		return nil
	})
	return out, err
}

func (r *PaymentRepository) LockOrder(ctx context.Context, orderID int64) (paymentapp.OrderView, error) {
	return r.Order(ctx, orderID)
}

func (r *PaymentRepository) SetOrderPaymentStatus(ctx context.Context, orderID int64, status orderdomain.PaymentStatus) error {
	return r.s.write(ctx, "payment.set_order_status", func(t *tables) error {
		o, ok := t.orders[orderID]
		if !ok {
			return apperr.NotFound("order")
		}
		o.PaymentStatus = status
		t.orders[orderID] = o
		return nil
	})
}

func (r *PaymentRepository) InsertIntent(ctx context.Context, i *paymentdomain.Intent) error {
	return r.s.write(ctx, "payment.insert_intent", func(t *tables) error {
		for _, existing := range t.intents {
			if existing.Provider == i.Provider && existing.ProviderPaymentID == i.ProviderPaymentID {
				return apperr.Duplicate("payment intent")
			}
		}
		i.ID = t.next("payment_intents")
		t.intents[i.ID] = *i
		return nil
	})
}

func (r *PaymentRepository) OpenIntent(ctx context.Context, orderID int64, provider string) (paymentdomain.Intent, error) {
	var out paymentdomain.Intent
	err := r.s.read(ctx, func(t *tables) error {
		found := false
		for _, i := range t.intents {
			if i.OrderID != orderID || i.Provider != provider || i.Status.IsTerminal() {
				continue
			}
			if !found || i.ID > out.ID {
				out, found = i, true
			}
		}
		if !found {
			return apperr.NotFound("payment intent")
		}
		return nil
	})
	return out, err
}

func (r *PaymentRepository) LockIntentByProviderID(ctx context.Context, provider, providerPaymentID string) (paymentdomain.Intent, error) {
	var out paymentdomain.Intent
	err := r.s.read(ctx, func(t *tables) error {
		for _, i := range t.intents {
			if i.Provider == provider && i.ProviderPaymentID == providerPaymentID {
				out = i
				return nil
			}
		}
		return apperr.NotFound("payment intent")
	})
	return out, err
}

func (r *PaymentRepository) SetIntentStatus(ctx context.Context, id int64, status paymentdomain.IntentStatus) error {
	return r.s.write(ctx, "payment.set_intent_status", func(t *tables) error {
		i, ok := t.intents[id]
		if !ok {
			return apperr.NotFound("payment intent")
		}
		i.Status = status
		t.intents[id] = i
		return nil
	})
}

func (r *PaymentRepository) InsertPayment(ctx context.Context, p *paymentdomain.Payment) error {
	return r.s.write(ctx, "payment.insert_payment", func(t *tables) error {
		for _, existing := range t.payments {
			if existing.IdempotencyKey == p.IdempotencyKey {
				return apperr.Duplicate("payment")
			}
			if p.TransactionID != nil && existing.TransactionID != nil &&
				existing.Provider == p.Provider && *existing.TransactionID == *p.TransactionID {
				return apperr.Duplicate("payment")
			}
		}
		p.ID = t.next("payments")
		t.payments[p.ID] = *p
		return nil
	})
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (paymentdomain.Payment, error) {
	var out paymentdomain.Payment
	err := r.s.read(ctx, func(t *tables) error {
		p, ok := t.payments[id]
		if !ok {
			return apperr.NotFound("payment")
		}
		out = p
		return nil
	})
	return out, err
}

func (r *PaymentRepository) LockPayment(ctx context.Context, id int64) (paymentdomain.Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *PaymentRepository) PaymentByTransaction(ctx context.Context, provider, transactionID string) (paymentdomain.Payment, error) {
	var out paymentdomain.Payment
	err := r.s.read(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.Provider == provider && p.TransactionID != nil && *p.TransactionID == transactionID {
				out = p
				return nil
			}
		}
		return apperr.NotFound("payment")
	})
	return out, err
}

func (r *PaymentRepository) LockLatestPayment(ctx context.Context, orderID int64, status paymentdomain.Status) (paymentdomain.Payment, error) {
	var out paymentdomain.Payment
	err := r.s.read(ctx, func(t *tables) error {
		found := false
		for _, p := range t.payments {
			if p.OrderID != orderID || p.Status != status {
				continue
			}
			if !found || p.ID > out.ID {
				out, found = p, true
			}
		}
		if !found {
			return apperr.NotFound("payment")
		}
		return nil
	})
	return out, err
}

func (r *PaymentRepository) SetPaymentStatus(ctx context.Context, id int64, status paymentdomain.Status) error {
	return r.s.write(ctx, "payment.set_payment_status", func(t *tables) error {
		p, ok := t.payments[id]
		if !ok {
			return apperr.NotFound("payment")
		}
		p.Status = status
		t.payments[id] = p
		return nil
	})
}

func (r *PaymentRepository) ListPayments(ctx context.Context, orderID int64) ([]paymentdomain.Payment, error) {
	var out []paymentdomain.Payment
	err := r.s.read(ctx, func(t *tables) error {
		for _, p := range t.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b paymentdomain.Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}

func (r *PaymentRepository) InsertRefund(ctx context.Context, ref *paymentdomain.Refund) error {
	return r.s.write(ctx, "payment.insert_refund", func(t *tables) error {
		for _, existing := range t.refunds {
			if existing.IdempotencyKey == ref.IdempotencyKey {
				return apperr.Duplicate("refund")
			}
		}
		ref.ID = t.next("refunds")
		t.refunds[ref.ID] = *ref
		return nil
	})
}

func (r *PaymentRepository) RefundByKey(ctx context.Context, key string) (paymentdomain.Refund, error) {
	return r.findRefund(ctx, func(ref paymentdomain.Refund) bool { return ref.IdempotencyKey == key })
}

func (r *PaymentRepository) LockRefundByProviderID(ctx context.Context, providerRefundID string) (paymentdomain.Refund, error) {
	return r.findRefund(ctx, func(ref paymentdomain.Refund) bool {
		return ref.ProviderRefundID != nil && *ref.ProviderRefundID == providerRefundID
	})
}

func (r *PaymentRepository) LockRefund(ctx context.Context, id int64) (paymentdomain.Refund, error) {
	return r.findRefund(ctx, func(ref paymentdomain.Refund) bool { return ref.ID == id })
}

func (r *PaymentRepository) findRefund(ctx context.Context, match func(paymentdomain.Refund) bool) (paymentdomain.Refund, error) {
	var out paymentdomain.Refund
	err := r.s.read(ctx, func(t *tables) error {
		for _, ref := range t.refunds {
			if match(ref) {
				out = ref
				return nil
			}
		}
		return apperr.NotFound("refund")
	})
	return out, err
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, ref paymentdomain.Refund) error {
	return r.s.write(ctx, "payment.update_refund", func(t *tables) error {
		if _, ok := t.refunds[ref.ID]; !ok {
			return apperr.NotFound("refund")
		}
		t.refunds[ref.ID] = ref
		return nil
	})
}

func (r *PaymentRepository) SumRefunds(ctx context.Context, paymentID int64, statuses ...paymentdomain.RefundStatus) (decimal.Decimal, error) {
	sum := money.Zero
	err := r.s.read(ctx, func(t *tables) error {
		for _, ref := range t.refunds {
			if ref.PaymentID == paymentID && slices.Contains(statuses, ref.Status) {
				sum = sum.Add(ref.Amount)
			}
		}
		return nil
	})
	return sum, err
}

func (r *PaymentRepository) ListRefunds(ctx context.Context, paymentID int64) ([]paymentdomain.Refund, error) {
	var out []paymentdomain.Refund
	err := r.s.read(ctx, func(t *tables) error {
		for _, ref := range t.refunds {
			if ref.PaymentID == paymentID {
				out = append(out, ref)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b paymentdomain.Refund) int { return cmp.Compare(a.ID, b.ID) })
	return out, err
}
