package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/internal/invoice/domain"
	paymentdomain "github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
)

type fakeBiller struct {
	calls int
	errs  []error
}

func (b *fakeBiller) BillPayment(context.Context, int64, int64) (domain.Invoice, bool, error) {
	b.calls++
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return domain.Invoice{}, false, err
	}
	return domain.Invoice{Number: "INV-1"}, true, nil
}

type fakeDedupe struct {
	claimed   map[string]bool
	completed []string
	forgotten []string
}

func (d *fakeDedupe) Claim(_ context.Context, key string) (bool, error) {
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

func (d *fakeDedupe) Complete(_ context.Context, key string) error {
	d.completed = append(d.completed, key)
	return nil
}

func (d *fakeDedupe) Release(_ context.Context, key string) error {
	delete(d.claimed, key)
	d.forgotten = append(d.forgotten, key)
	return nil
}

// fakeReader serves msgs in order, then blocks until ctx is cancelled like
// a caught-up group reader.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func newConsumer(b *fakeBiller, d *fakeDedupe) *Consumer {
	return newReadingConsumer(nil, b, d)
}

func newReadingConsumer(r Reader, b *fakeBiller, d *fakeDedupe) *Consumer {
	c := NewConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), r, b, d)
	c.backoff = 0
	return c
}

func captured(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	body, err := json.Marshal(paymentdomain.PaymentCaptured{PaymentID: 9, OrderID: 4, Amount: "10.00"})
	require.NoError(t, err)
	return kafka.Message{
		Topic:   "payment.events",
		Offset:  offset,
		Value:   body,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(paymentdomain.EventPaymentCaptured)}},
	}
}

func TestHandleBillsOncePerDelivery(t *testing.T) {
	b := &fakeBiller{}
	d := &fakeDedupe{claimed: map[string]bool{}}
	c := newConsumer(b, d)

	msg := captured(t, 1)
	require.NoError(t, c.Handle(context.Background(), msg))
	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, []string{"offset:payment.events:0:1"}, d.completed)
}

func TestHandleDedupesRepublishedEvent(t *testing.T) {
	b := &fakeBiller{}
	d := &fakeDedupe{claimed: map[string]bool{}}
	c := newConsumer(b, d)

	first := captured(t, 10)
	first.Headers = append(first.Headers, kafka.Header{Key: outbox.EventIDHeader, Value: []byte("77")})
	again := captured(t, 11)
	again.Headers = append(again.Headers, kafka.Header{Key: outbox.EventIDHeader, Value: []byte("77")})

	require.NoError(t, c.Handle(context.Background(), first))
	require.NoError(t, c.Handle(context.Background(), again))

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, []string{"event:77"}, d.completed)
}

func TestHandleSkipsOtherEvents(t *testing.T) {
	b := &fakeBiller{}
	c := newConsumer(b, &fakeDedupe{claimed: map[string]bool{}})

	msg := captured(t, 1)
	msg.Headers = []kafka.Header{{Key: eventTypeHeader, Value: []byte(paymentdomain.EventRefundSucceeded)}}
	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Zero(t, b.calls)
}

func TestHandleRetriesThenReleasesClaim(t *testing.T) {
	boom := errors.New("db down")
	b := &fakeBiller{errs: []error{boom, boom, boom}}
	d := &fakeDedupe{claimed: map[string]bool{}}
	c := newConsumer(b, d)

	msg := captured(t, 2)
	assert.ErrorIs(t, c.Handle(context.Background(), msg), boom)

	assert.Equal(t, maxAttempts, b.calls)
	assert.Len(t, d.forgotten, 1)

	require.NoError(t, c.Handle(context.Background(), msg))
	assert.Equal(t, maxAttempts+1, b.calls, "redelivery is billed after the claim is released")
}

func TestHandleRecoversOnRetry(t *testing.T) {
	b := &fakeBiller{errs: []error{errors.New("serialization failure")}}
	d := &fakeDedupe{claimed: map[string]bool{}}
	c := newConsumer(b, d)

	require.NoError(t, c.Handle(context.Background(), captured(t, 3)))

	assert.Equal(t, 2, b.calls)
	assert.Empty(t, d.forgotten)
}

func TestRunCommitsBilledMessages(t *testing.T) {
	b := &fakeBiller{}
	d := &fakeDedupe{claimed: map[string]bool{}}
	skipped := captured(t, 4)
	skipped.Headers = []kafka.Header{{Key: eventTypeHeader, Value: []byte(paymentdomain.EventRefundSucceeded)}}
	r := &fakeReader{msgs: []kafka.Message{captured(t, 3), skipped}}
	c := newReadingConsumer(r, b, d)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 1, b.calls)
	assert.Equal(t, []int64{3, 4}, r.committed)
	assert.True(t, r.closed)
}

func TestRunStopsWithoutCommitWhenBillingFails(t *testing.T) {
	boom := errors.New("db down")
	b := &fakeBiller{errs: []error{boom, boom, boom}}
	d := &fakeDedupe{claimed: map[string]bool{}}
	r := &fakeReader{msgs: []kafka.Message{captured(t, 5), captured(t, 6)}}
	c := newReadingConsumer(r, b, d)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "payment.events/0@5")

	assert.Empty(t, r.committed, "failed offset stays uncommitted for redelivery")
	assert.Len(t, r.msgs, 1, "nothing past the failed message is consumed")
	assert.Equal(t, []string{"offset:payment.events:0:5"}, d.forgotten)
	assert.True(t, r.closed)
}
