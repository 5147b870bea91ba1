package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/commerce-backoffice/internal/config"
	invoiceapp "github.com/dmehra2102/commerce-backoffice/internal/invoice/application"
	invoicekafka "github.com/dmehra2102/commerce-backoffice/internal/invoice/infrastructure/kafka"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/postgres"
	"github.com/dmehra2102/commerce-backoffice/pkg/idempotency"
	"github.com/dmehra2102/commerce-backoffice/pkg/logging"
	"github.com/dmehra2102/commerce-backoffice/pkg/shutdown"
	"github.com/dmehra2102/commerce-backoffice/pkg/tracing"
)

func main() {
	cfg := config.Load("billing-worker")
	log := logging.New(cfg.LogLevel, cfg.Service)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	db := postgres.New(log, pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	invoices := invoiceapp.NewService(log, db, postgres.NewInvoiceRepository(db))
	reader := invoicekafka.NewReader(cfg.KafkaBrokers, cfg.PaymentTopic, cfg.Service)
	consumer := invoicekafka.NewConsumer(log, reader, invoices, idempotency.NewStore(rdb, cfg.IdempotencyTTL))

	g, gctx := errgroup.WithContext(ctx)
	// Run closes the reader on its way out.
	g.Go(func() error { return consumer.Run(gctx) })

	err = g.Wait()
	shutdown.Drain(log, cfg.ShutdownTimeout, shutdown.Step{Name: "tracing", Fn: tp.Shutdown})
	if err != nil {
		log.Error("billing-worker stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("billing-worker shutdown complete")
}
