package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	cartapp "github.com/dmehra2102/commerce-backoffice/internal/cart/application"
	carthttp "github.com/dmehra2102/commerce-backoffice/internal/cart/infrastructure/http"
	"github.com/dmehra2102/commerce-backoffice/internal/config"
	couponapp "github.com/dmehra2102/commerce-backoffice/internal/coupon/application"
	couponhttp "github.com/dmehra2102/commerce-backoffice/internal/coupon/infrastructure/http"
	inventoryapp "github.com/dmehra2102/commerce-backoffice/internal/inventory/application"
	inventoryhttp "github.com/dmehra2102/commerce-backoffice/internal/inventory/infrastructure/http"
	invoiceapp "github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	invoicehttp "github.com/dmehra2102/commerce-backoffice/internal/invoice/infrastructure/http"
	orderapp "github.com/dmehra2102/commerce-backoffice/internal/order/application"
	orderhttp "github.com/dmehra2102/commerce-backoffice/internal/order/infrastructure/http"
	paymentapp "github.com/dmehra2102/commerce-backoffice/internal/payment/application"
	"github.com/dmehra2102/commerce-backoffice/internal/payment/gateway"
	paymenthttp "github.com/dmehra2102/commerce-backoffice/internal/payment/infrastructure/http"
	"github.com/dmehra2102/commerce-backoffice/internal/settings"
	shipmentapp "github.com/dmehra2102/commerce-backoffice/internal/shipment/application"
	shipmenthttp "github.com/dmehra2102/commerce-backoffice/internal/shipment/infrastructure/http"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/postgres"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
	"github.com/dmehra2102/commerce-backoffice/pkg/logging"
	"github.com/dmehra2102/commerce-backoffice/pkg/outbox"
	"github.com/dmehra2102/commerce-backoffice/pkg/shutdown"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

func main() {
	cfg := config.Load("backoffice")
	log := logging.New(cfg.LogLevel, cfg.Service)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	mp, err := tracing.InitMetrics(ctx, cfg.Service, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel metrics init failed", "err", err)
		os.Exit(1)
	}

	// Postgres
	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, log, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	db := postgres.New(log, pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// Kafka producer and outbox relay
	writer := outbox.NewWriter(cfg.KafkaBrokers)
	outboxStore := postgres.NewOutboxStore(db)
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderTopic, map[string]string{
		"order":    cfg.OrderTopic,
		"shipment": cfg.OrderTopic,
		"payment":  cfg.PaymentTopic,
	})
	relay := outbox.NewRelay(log, outboxStore, dispatch, cfg.RelayID,
		outbox.WithBatchSize(cfg.RelayBatch),
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithLease(cfg.RelayLease),
	)

	// Services
	settingsSvc := settings.NewService(log, postgres.NewSettingsRepository(db), settings.NewRedisCache(rdb), cfg.SettingsCacheTTL)
	coupons := couponapp.NewService(log, postgres.NewCouponRepository(db))
	inventory := inventoryapp.NewService(log, db, postgres.NewInventoryRepository(db))
	carts := cartapp.NewService(log, db, postgres.NewCartRepository(db), postgres.NewCatalogRepository(db), coupons, settingsSvc)
	orderRepo := postgres.NewOrderRepository(db)
	checkout := orderapp.NewCheckout(log, db, orderRepo, postgres.NewCartRepository(db), coupons, inventory, outboxStore)
	orders := orderapp.NewService(log, db, orderRepo, inventory, outboxStore)

	providers := []gateway.Gateway{gateway.NewCOD()}
	if cfg.StripeSecretKey != "" {
		providers = append(providers, gateway.NewStripe(log, gateway.NewStripeClient(cfg.StripeSecretKey), cfg.StripeWebhookSecret))
	} else {
		log.Warn("stripe disabled: STRIPE_SECRET_KEY not set")
	}
	payments := paymentapp.NewService(log, db, postgres.NewPaymentRepository(db), gateway.NewRegistry(providers...), outboxStore)
	invoices := invoiceapp.NewService(log, db, postgres.NewInvoiceRepository(db))
	shipments := shipmentapp.NewService(log, db, postgres.NewShipmentRepository(db), outboxStore)

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(30*time.Second))
	r.Use(httpx.RequestLogger(log))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	carthttp.NewHandler(log, carts).Routes(r)
	couponhttp.NewHandler(log, coupons).Routes(r)
	orderhttp.NewHandler(log, checkout, orders).Routes(r)
	inventoryhttp.NewHandler(log, inventory).Routes(r)
	paymenthttp.NewHandler(log, payments).Routes(r)
	invoicehttp.NewHandler(log, invoices).Routes(r)
	shipmenthttp.NewHandler(log, shipments).Routes(r)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return sweepCarts(gctx, log, carts, cfg.CartSweepInterval) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdown.Drain(log, cfg.ShutdownTimeout,
			shutdown.Step{Name: "http", Fn: srv.Shutdown},
			shutdown.Step{Name: "kafka", Fn: func(context.Context) error { return writer.Close() }},
			shutdown.Step{Name: "tracing", Fn: tp.Shutdown},
			shutdown.Step{Name: "metrics", Fn: mp.Shutdown},
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("backoffice stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("backoffice shutdown complete")
}
