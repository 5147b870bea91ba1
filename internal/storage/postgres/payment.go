package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	paymentapp "github.com/dmehra2102/commerce-backoffice/internal/payment/application"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

type PaymentRepository struct{ db *DB }

func NewPaymentRepository(db *DB) *PaymentRepository { return &PaymentRepository{db: db} }

const (
	intentColumns = `id, order_id, provider, provider_payment_id, client_secret, idempotency_key, status, amount,
	currency, created_at, updated_at`
	paymentColumns = `id, order_id, invoice_id, provider, idempotency_key, transaction_id, status, amount, currency,
	raw, created_at, updated_at`
	refundColumns = `id, payment_id, order_id, amount, status, reason, provider_refund_id, idempotency_key,
	created_at, updated_at`
)

func scanIntent(row pgx.Row) (paymentdomain.Intent, error) {
	var i paymentdomain.Intent
	err := row.Scan(&i.ID, &i.OrderID, &i.Provider, &i.ProviderPaymentID, &i.ClientSecret, &i.IdempotencyKey,
		&i.Status, &i.Amount, &i.Currency, &i.CreatedAt, &i.UpdatedAt)
	return i, translate(err, "payment intent")
}

func scanPayment(row pgx.Row) (paymentdomain.Payment, error) {
	var p paymentdomain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.InvoiceID, &p.Provider, &p.IdempotencyKey, &p.TransactionID, &p.Status,
		&p.Amount, &p.Currency, &p.Raw, &p.CreatedAt, &p.UpdatedAt)
	return p, translate(err, "payment")
}

func scanRefund(row pgx.Row) (paymentdomain.Refund, error) {
	var r paymentdomain.Refund
	err := row.Scan(&r.ID, &r.PaymentID, &r.OrderID, &r.Amount, &r.Status, &r.Reason, &r.ProviderRefundID,
		&r.IdempotencyKey, &r.CreatedAt, &r.UpdatedAt)
	return r, translate(err, "refund")
}

func (r *PaymentRepository) Order(ctx context.Context, orderID int64) (paymentapp.OrderView, error) {
	return r.order(ctx, `SELECT id, number, status, payment_status, grand_total, currency FROM orders WHERE id=$1`, orderID)
}

func (r *PaymentRepository) LockOrder(ctx context.Context, orderID int64) (paymentapp.OrderView, error) {
	return r.order(ctx, r.db.forUpdate(ctx, `SELECT id, number, status, payment_status, grand_total, currency FROM orders WHERE id=$1`), orderID)
}

func (r *PaymentRepository) order(ctx context.Context, sql string, orderID int64) (paymentapp.OrderView, error) {
	var o paymentapp.OrderView
	err := r.db.q(ctx).QueryRow(ctx, sql, orderID).
		Scan(&o.ID, &o.Number, &o.Status, &o.PaymentStatus, &o.GrandTotal, &o.Currency)
	return o, translate(err, "order")
}

func (r *PaymentRepository) SetOrderPaymentStatus(ctx context.Context, orderID int64, status orderdomain.PaymentStatus) error {
	return r.db.exec(ctx, "order", `UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`, orderID, status)
}

func (r *PaymentRepository) InsertIntent(ctx context.Context, i *paymentdomain.Intent) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO payment_intents (order_id, provider, provider_payment_id, client_secret, idempotency_key, status,
			amount, currency, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		i.OrderID, i.Provider, i.ProviderPaymentID, i.ClientSecret, i.IdempotencyKey, i.Status, i.Amount, i.Currency,
		i.CreatedAt, i.UpdatedAt,
	).Scan(&i.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("payment intent")
	}
	return translate(err, "payment intent")
}

func (r *PaymentRepository) OpenIntent(ctx context.Context, orderID int64, provider string) (paymentdomain.Intent, error) {
	return scanIntent(r.db.q(ctx).QueryRow(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE order_id=$1 AND provider=$2 AND status NOT IN ($3, $4, $5)
		ORDER BY id DESC LIMIT 1`,
		orderID, provider, paymentdomain.IntentSucceeded, paymentdomain.IntentCanceled, paymentdomain.IntentFailed))
}

func (r *PaymentRepository) LockIntentByProviderID(ctx context.Context, provider, providerPaymentID string) (paymentdomain.Intent, error) {
	return scanIntent(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `
		SELECT `+intentColumns+` FROM payment_intents WHERE provider=$1 AND provider_payment_id=$2`),
		provider, providerPaymentID))
}

func (r *PaymentRepository) SetIntentStatus(ctx context.Context, id int64, status paymentdomain.IntentStatus) error {
	return r.db.exec(ctx, "payment intent", `UPDATE payment_intents SET status=$2, updated_at=now() WHERE id=$1`, id, status)
}

// InsertPayment skips on any unique conflict so a replayed capture reports a
// duplicate without aborting the transaction.
func (r *PaymentRepository) InsertPayment(ctx context.Context, p *paymentdomain.Payment) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO payments (order_id, invoice_id, provider, idempotency_key, transaction_id, status, amount, currency,
			raw, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		p.OrderID, p.InvoiceID, p.Provider, p.IdempotencyKey, p.TransactionID, p.Status, p.Amount, p.Currency,
		p.Raw, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("payment")
	}
	return translate(err, "payment")
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (paymentdomain.Payment, error) {
	return scanPayment(r.db.q(ctx).QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

func (r *PaymentRepository) LockPayment(ctx context.Context, id int64) (paymentdomain.Payment, error) {
	return scanPayment(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`), id))
}

func (r *PaymentRepository) PaymentByTransaction(ctx context.Context, provider, transactionID string) (paymentdomain.Payment, error) {
	return scanPayment(r.db.q(ctx).QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE provider=$1 AND transaction_id=$2`, provider, transactionID))
}

func (r *PaymentRepository) LockLatestPayment(ctx context.Context, orderID int64, status paymentdomain.Status) (paymentdomain.Payment, error) {
	return scanPayment(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1`),
		orderID, status))
}

func (r *PaymentRepository) SetPaymentStatus(ctx context.Context, id int64, status paymentdomain.Status) error {
	return r.db.exec(ctx, "payment", `UPDATE payments SET status=$2, updated_at=now() WHERE id=$1`, id, status)
}

func (r *PaymentRepository) ListPayments(ctx context.Context, orderID int64) ([]paymentdomain.Payment, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, translate(err, "payments")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (paymentdomain.Payment, error) { return scanPayment(row) })
}

func (r *PaymentRepository) InsertRefund(ctx context.Context, ref *paymentdomain.Refund) error {
	err := r.db.q(ctx).QueryRow(ctx, `
		INSERT INTO refunds (payment_id, order_id, amount, status, reason, provider_refund_id, idempotency_key,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT DO NOTHING
		RETURNING id`,
		ref.PaymentID, ref.OrderID, ref.Amount, ref.Status, ref.Reason, ref.ProviderRefundID, ref.IdempotencyKey,
		ref.CreatedAt, ref.UpdatedAt,
	).Scan(&ref.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Duplicate("refund")
	}
	return translate(err, "refund")
}

func (r *PaymentRepository) RefundByKey(ctx context.Context, key string) (paymentdomain.Refund, error) {
	return scanRefund(r.db.q(ctx).QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE idempotency_key=$1`, key))
}

func (r *PaymentRepository) LockRefundByProviderID(ctx context.Context, providerRefundID string) (paymentdomain.Refund, error) {
	return scanRefund(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+refundColumns+` FROM refunds WHERE provider_refund_id=$1`), providerRefundID))
}

func (r *PaymentRepository) LockRefund(ctx context.Context, id int64) (paymentdomain.Refund, error) {
	return scanRefund(r.db.q(ctx).QueryRow(ctx, r.db.forUpdate(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id=$1`), id))
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, ref paymentdomain.Refund) error {
	return r.db.exec(ctx, "refund", `
		UPDATE refunds SET status=$2, reason=$3, provider_refund_id=$4, updated_at=$5 WHERE id=$1`,
		ref.ID, ref.Status, ref.Reason, ref.ProviderRefundID, ref.UpdatedAt)
}

func (r *PaymentRepository) SumRefunds(ctx context.Context, paymentID int64, statuses ...paymentdomain.RefundStatus) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var sum decimal.Decimal
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id=$1 AND status = ANY($2)`,
		paymentID, names).Scan(&sum)
	return sum, translate(err, "refunds")
}

func (r *PaymentRepository) ListRefunds(ctx context.Context, paymentID int64) ([]paymentdomain.Refund, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+refundColumns+` FROM refunds WHERE payment_id=$1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, translate(err, "refunds")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (paymentdomain.Refund, error) { return scanRefund(row) })
}
