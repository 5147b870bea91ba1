package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

// Headers every published message carries next to the event's own headers.
const (
	EventTypeHeader     = "event_type"
	EventIDHeader       = "event_id"
	AggregateTypeHeader = "aggregate_type"
)

// ErrPermanent marks a dispatch failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent")

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher turns outbox rows into Kafka messages. Topics are chosen by
// aggregate type; types without a route go to the fallback topic.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	routes   map[string]string
	fallback string
	tracer   trace.Tracer
}

func NewDispatcher(log *slog.Logger, producer Producer, fallback string, routes map[string]string) *Dispatcher {
	return &Dispatcher{
		log:      log,
		producer: producer,
		routes:   routes,
		fallback: fallback,
		tracer:   otel.Tracer("outbox"),
	}
}

func (d *Dispatcher) Topic(aggregateType string) string {
	if t, ok := d.routes[aggregateType]; ok {
		return t
	}
	return d.fallback
}

// Publish writes the events with a single producer call. The result holds
// one error per event by position; nil means the broker acknowledged it.
func (d *Dispatcher) Publish(ctx context.Context, events []Event) []error {
	errs := make([]error, len(events))
	spans := make([]trace.Span, len(events))
	msgs := make([]kafka.Message, 0, len(events))
	pos := make([]int, 0, len(events))

	for i, e := range events {
		msg, span, err := d.message(ctx, e)
		if err != nil {
			errs[i] = err
			continue
		}
		spans[i] = span
		msgs = append(msgs, msg)
		pos = append(pos, i)
	}

	if len(msgs) > 0 {
		err := d.producer.WriteMessages(ctx, msgs...)
		var perMsg kafka.WriteErrors
		switch {
		case err == nil:
		case errors.As(err, &perMsg) && len(perMsg) == len(msgs):
			for j, werr := range perMsg {
				errs[pos[j]] = werr
			}
		default:
			for _, i := range pos {
				errs[i] = err
			}
		}
	}

	for i, span := range spans {
		e := events[i]
		if errs[i] != nil {
			d.log.Error("outbox dispatch failed", "event_id", e.ID, "type", e.Type, "err", errs[i])
		} else {
			d.log.Debug("outbox dispatched", "event_id", e.ID, "type", e.Type, "topic", d.Topic(e.AggregateType))
		}
		if span == nil {
			continue
		}
		if errs[i] != nil {
			span.RecordError(errs[i])
			span.SetStatus(codes.Error, "publish failed")
		}
		span.End()
	}
	return errs
}

// message builds the Kafka message for e under a producer span parented on
// the request that recorded the event.
func (d *Dispatcher) message(ctx context.Context, e Event) (kafka.Message, trace.Span, error) {
	topic := d.Topic(e.AggregateType)
	if topic == "" {
		return kafka.Message{}, nil, fmt.Errorf("%w: no topic for aggregate %q", ErrPermanent, e.AggregateType)
	}
	if len(e.Payload) == 0 {
		return kafka.Message{}, nil, fmt.Errorf("%w: event %d has no payload", ErrPermanent, e.ID)
	}

	ctx, span := d.tracer.Start(tracing.FromTraceparent(ctx, e.Traceparent), topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.Int64("outbox.event_id", e.ID),
			attribute.String("outbox.event_type", e.Type),
		),
	)

	headers := make([]kafka.Header, 0, len(e.Headers)+4)
	for k, v := range e.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: EventTypeHeader, Value: []byte(e.Type)},
		kafka.Header{Key: EventIDHeader, Value: []byte(strconv.FormatInt(e.ID, 10))},
		kafka.Header{Key: AggregateTypeHeader, Value: []byte(e.AggregateType)},
	)

	headers = tracing.InjectKafkaHeaders(ctx, headers)
	// without a propagator installed the recorded parent is passed on as is
	if tracing.HeaderValue(headers, tracing.TraceparentHeader) == "" && e.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: tracing.TraceparentHeader, Value: []byte(e.Traceparent)})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: headers,
		Time:    e.CreatedAt,
	}, span, nil
}
