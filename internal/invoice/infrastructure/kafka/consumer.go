package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

const (
	eventTypeHeader = outbox.EventTypeHeader
	maxAttempts     = 3
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Biller interface {
	BillPayment(ctx context.Context, orderID, paymentID int64) (domain.Invoice, bool, error)
}

type Dedupe interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Consumer is the billing worker: it invoices every captured payment.
type Consumer struct {
	log     *slog.Logger
	reader  Reader
	biller  Biller
	idem    Dedupe
	tracer  trace.Tracer
	backoff time.Duration
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader Reader, biller Biller, idem Dedupe) *Consumer {
	return &Consumer{
		log:     log,
		reader:  reader,
		biller:  biller,
		idem:    idem,
		tracer:  otel.Tracer("billing-worker"),
		backoff: time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// leave the offset uncommitted so the group redelivers it
			return errors.Wrapf(err, "bill %s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		}
	}
}

// Handle processes one message. Undecodable or unrelated messages are
// skipped. A billing error that outlasts the retries releases the dedupe
// claim and is returned, so the caller must not commit the offset.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	if tracing.HeaderValue(msg.Headers, eventTypeHeader) != paymentdomain.EventPaymentCaptured {
		return nil
	}

	key := dedupeKey(msg)
	claimed, err := c.idem.Claim(ctx, key)
	if err != nil {
		c.log.Error("idempotency check failed", "key", key, "err", err)
	} else if !claimed {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentCaptured")
	defer span.End()

	var event paymentdomain.PaymentCaptured
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		span.RecordError(err)
		return nil
	}
	span.SetAttributes(attribute.Int64("order.id", event.OrderID), attribute.Int64("payment.id", event.PaymentID))

	for attempt := 1; ; attempt++ {
		inv, billed, err := c.biller.BillPayment(msgCtx, event.OrderID, event.PaymentID)
		if err == nil {
			if billed {
				c.log.Info("payment invoiced", "order_id", event.OrderID, "payment_id", event.PaymentID, "invoice_no", inv.Number)
			} else {
				c.log.Info("payment needs no invoice", "order_id", event.OrderID, "payment_id", event.PaymentID)
			}
			if cerr := c.idem.Complete(ctx, key); cerr != nil {
				c.log.Warn("idempotency complete failed", "key", key, "err", cerr)
			}
			return nil
		}
		if attempt >= maxAttempts || ctx.Err() != nil {
			c.log.Error("billing failed", "order_id", event.OrderID, "payment_id", event.PaymentID, "attempts", attempt, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if ferr := c.idem.Release(ctx, key); ferr != nil {
				c.log.Warn("idempotency release failed", "key", key, "err", ferr)
			}
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
}

// dedupeKey identifies the outbox event behind msg, so a re-published event
// is recognised even though it lands at a new offset.
func dedupeKey(msg kafka.Message) string {
	if id := tracing.HeaderValue(msg.Headers, outbox.EventIDHeader); id != "" {
		return "event:" + id
	}
	return fmt.Sprintf("offset:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}
