package application

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	orderdomain "github.com/dmehra2102/commerce-backoffice/internal/order/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/domain"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/gateway"
	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

type Service struct {
	log      *slog.Logger
	tx       Transactor
	repo     Repository
	gateways *gateway.Registry
	events   outbox.Recorder
	webhooks metric.Int64Counter
	now      func() time.Time
}

func NewService(log *slog.Logger, tx Transactor, repo Repository, gateways *gateway.Registry, events outbox.Recorder) *Service {
	webhooks, err := otel.Meter("payment").Int64Counter("webhooks_received_total")
	if err != nil {
		log.Warn("webhooks_received_total counter unavailable", "err", err)
	}
	return &Service{
		log:      log,
		tx:       tx,
		repo:     repo,
		gateways: gateways,
		events:   events,
		webhooks: webhooks,
		now:      time.Now,
	}
}

type StartResult struct {
	Provider string          `json:"provider"`
	Intent   *domain.Intent  `json:"intent,omitempty"`
	Payment  *domain.Payment `json:"payment,omitempty"`
	Frontend map[string]any  `json:"frontend"`
}

// Start begins payment of an order with the given provider. Offline
// providers authorize a payment straight away; online providers get a
// provider intent, reused while it is still open.
func (s *Service) Start(ctx context.Context, orderID int64, provider string) (StartResult, error) {
	g, err := s.gateways.Get(provider)
	if err != nil {
		return StartResult{}, err
	}
	o, err := s.repo.Order(ctx, orderID)
	if err != nil {
		return StartResult{}, err
	}
	if err := payable(o); err != nil {
		return StartResult{}, err
	}
	if !g.Online() {
		return s.authorizeOffline(ctx, g, orderID)
	}

	if open, err := s.repo.OpenIntent(ctx, orderID, g.Code()); err == nil && open.Amount.Equal(o.GrandTotal) {
		return StartResult{Provider: g.Code(), Intent: &open, Frontend: g.FrontendPayload(&open)}, nil
	} else if err != nil && !apperr.IsNotFound(err) {
		return StartResult{}, err
	}

	key := uuid.NewString()
	res, err := g.CreateIntent(ctx, gateway.Order{ID: o.ID, Number: o.Number, Amount: o.GrandTotal, Currency: o.Currency}, key)
	if err != nil {
		return StartResult{}, err
	}
	now := s.now().UTC()
	intent := domain.Intent{
		OrderID:           o.ID,
		Provider:          g.Code(),
		ProviderPaymentID: res.ProviderPaymentID,
		ClientSecret:      res.ClientSecret,
		IdempotencyKey:    key,
		Status:            res.Status,
		Amount:            o.GrandTotal,
		Currency:          o.Currency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertIntent(ctx, &intent); err != nil {
		return StartResult{}, err
	}
	s.log.Info("payment intent created", "order_id", o.ID, "provider", g.Code(), "intent", intent.ProviderPaymentID)
	return StartResult{Provider: g.Code(), Intent: &intent, Frontend: g.FrontendPayload(&intent)}, nil
}

func (s *Service) authorizeOffline(ctx context.Context, g gateway.Gateway, orderID int64) (StartResult, error) {
	var p domain.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := payable(o); err != nil {
			return err
		}
		p, err = s.repo.LockLatestPayment(ctx, orderID, domain.StatusAuthorized)
		if apperr.IsNotFound(err) {
			now := s.now().UTC()
			p = domain.Payment{
				OrderID:        orderID,
				Provider:       g.Code(),
				IdempotencyKey: uuid.NewString(),
				Status:         domain.StatusAuthorized,
				Amount:         o.GrandTotal,
				Currency:       o.Currency,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			err = s.repo.InsertPayment(ctx, &p)
		}
		if err != nil {
			return err
		}
		return s.bumpOrder(ctx, o, orderdomain.PaymentAuthorized)
	})
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Provider: g.Code(), Payment: &p, Frontend: g.FrontendPayload(nil)}, nil
}

// ConfirmOffline captures the latest authorized payment of the order, e.g.
// when cash is collected on delivery.
func (s *Service) ConfirmOffline(ctx context.Context, orderID int64) (domain.Payment, error) {
	var p domain.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		p, err = s.repo.LockLatestPayment(ctx, orderID, domain.StatusAuthorized)
		if apperr.IsNotFound(err) {
			return apperr.Conflict("order %d has no authorized payment", orderID)
		}
		if err != nil {
			return err
		}
		g, err := s.gateways.Get(p.Provider)
		if err != nil {
			return err
		}
		if g.Online() {
			return apperr.Conflict("payment %d is captured by its provider", p.ID)
		}
		if err := g.Confirm(ctx, p); err != nil {
			return err
		}
		if err := s.repo.SetPaymentStatus(ctx, p.ID, domain.StatusCaptured); err != nil {
			return err
		}
		p.Status = domain.StatusCaptured
		if err := s.bumpOrder(ctx, o, orderdomain.PaymentPaid); err != nil {
			return err
		}
		return s.recordCaptured(ctx, p)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	s.log.Info("offline payment captured", "order_id", orderID, "payment_id", p.ID)
	return p, nil
}

type WebhookResult struct {
	Ignored bool
	Kind    gateway.EventKind
}

// HandleWebhook verifies and applies a provider callback. Deliveries the
// provider does not own, or whose signature fails, are ignored. Replays of an
// already applied event are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, provider string, h http.Header, payload []byte) (WebhookResult, error) {
	g, err := s.gateways.Get(provider)
	if err != nil {
		return WebhookResult{}, apperr.NotFound("payment provider " + provider)
	}
	if s.webhooks != nil {
		s.webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
	if !g.OwnsWebhook(h) {
		return WebhookResult{Ignored: true}, nil
	}
	ev, err := g.HandleWebhook(payload, h)
	if errors.Is(err, gateway.ErrInvalidSignature) {
		s.log.Warn("webhook signature rejected", "provider", provider, "err", err)
		return WebhookResult{Ignored: true}, nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	res := WebhookResult{Kind: ev.Kind}
	switch ev.Kind {
	case gateway.EventIntentSucceeded:
		err = s.captureIntent(ctx, g.Code(), ev)
	case gateway.EventIntentFailed:
		err = s.failIntent(ctx, g.Code(), ev)
	case gateway.EventRefundSucceeded, gateway.EventRefundFailed:
		err = s.settleProviderRefund(ctx, ev)
	default:
		res.Ignored = true
	}
	if err != nil {
		return WebhookResult{}, err
	}
	s.log.Info("webhook applied", "provider", provider, "event_id", ev.ProviderEventID, "kind", ev.Kind)
	return res, nil
}

func (s *Service) captureIntent(ctx context.Context, provider string, ev gateway.Event) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		intent, err := s.repo.LockIntentByProviderID(ctx, provider, ev.ProviderPaymentID)
		if apperr.IsNotFound(err) {
			s.log.Warn("webhook for unknown intent", "provider", provider, "intent", ev.ProviderPaymentID)
			return nil
		}
		if err != nil {
			return err
		}
		if intent.Status.CanTransition(domain.IntentSucceeded) {
			if err := s.repo.SetIntentStatus(ctx, intent.ID, domain.IntentSucceeded); err != nil {
				return err
			}
		}

		if _, err := s.repo.PaymentByTransaction(ctx, provider, ev.ProviderPaymentID); err == nil {
			s.log.Info("duplicate capture skipped", "intent", ev.ProviderPaymentID)
			return nil
		} else if !apperr.IsNotFound(err) {
			return err
		}

		now := s.now().UTC()
		txID := ev.ProviderPaymentID
		amount := intent.Amount
		if ev.Amount.IsPositive() {
			amount = ev.Amount
		}
		p := domain.Payment{
			OrderID:        intent.OrderID,
			Provider:       provider,
			IdempotencyKey: intent.IdempotencyKey,
			TransactionID:  &txID,
			Status:         domain.StatusCaptured,
			Amount:         amount,
			Currency:       intent.Currency,
			Raw:            ev.Raw,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.InsertPayment(ctx, &p); err != nil {
			if apperr.IsDuplicate(err) {
				return nil
			}
			return err
		}

		o, err := s.repo.LockOrder(ctx, intent.OrderID)
		if err != nil {
			return err
		}
		if err := s.bumpOrder(ctx, o, orderdomain.PaymentPaid); err != nil {
			return err
		}
		return s.recordCaptured(ctx, p)
	})
}

func (s *Service) failIntent(ctx context.Context, provider string, ev gateway.Event) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		intent, err := s.repo.LockIntentByProviderID(ctx, provider, ev.ProviderPaymentID)
		if apperr.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !intent.Status.CanTransition(domain.IntentFailed) {
			return nil
		}
		if err := s.repo.SetIntentStatus(ctx, intent.ID, domain.IntentFailed); err != nil {
			return err
		}
		o, err := s.repo.LockOrder(ctx, intent.OrderID)
		if err != nil {
			return err
		}
		if err := s.bumpOrder(ctx, o, orderdomain.PaymentFailed); err != nil {
			return err
		}
		return s.record(ctx, intent.OrderID, domain.EventPaymentFailed, domain.PaymentFailed{
			OrderID:           intent.OrderID,
			Provider:          provider,
			ProviderPaymentID: intent.ProviderPaymentID,
		})
	})
}

func (s *Service) Payments(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	if _, err := s.repo.Order(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, orderID)
}

// bumpOrder writes the order payment status unless that would move it
// backwards.
func (s *Service) bumpOrder(ctx context.Context, o OrderView, want orderdomain.PaymentStatus) error {
	next, changed := orderdomain.NextPaymentStatus(o.PaymentStatus, want)
	if !changed {
		return nil
	}
	return s.repo.SetOrderPaymentStatus(ctx, o.ID, next)
}

func (s *Service) recordCaptured(ctx context.Context, p domain.Payment) error {
	return s.record(ctx, p.OrderID, domain.EventPaymentCaptured, domain.PaymentCaptured{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Provider:  p.Provider,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
	})
}

func (s *Service) record(ctx context.Context, orderID int64, eventType string, payload any) error {
	e, err := outbox.NewEvent("payment", strconv.FormatInt(orderID, 10), eventType, payload)
	if err != nil {
		return err
	}
	e.Traceparent = tracing.Traceparent(ctx)
	return s.events.Record(ctx, e)
}

func payable(o OrderView) error {
	if o.Status == orderdomain.StatusCancelled {
		return apperr.Conflict("order %d is cancelled", o.ID)
	}
	if o.PaymentStatus == orderdomain.PaymentPaid || o.PaymentStatus == orderdomain.PaymentRefunded {
		return apperr.Conflict("order %d is already %s", o.ID, o.PaymentStatus)
	}
	return nil
}
