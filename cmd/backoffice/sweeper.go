package main

import (
	"context"
	"log/slog"
	"time"

	cartapp "github.com/dmehra2102/commerce-backoffice/internal/cart/application"
)

// sweepCarts abandons expired carts on every tick until ctx ends.
func sweepCarts(ctx context.Context, log *slog.Logger, carts *cartapp.Service, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := carts.AbandonExpired(ctx)
			if err != nil {
				log.Error("cart sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("carts abandoned", "count", n)
			}
		}
	}
}
