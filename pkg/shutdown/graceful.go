package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Drain runs the steps in order under one shared deadline. A failing step is
// logged and the rest still run.
func Drain(log *slog.Logger, timeout time.Duration, steps ...Step) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, step := range steps {
		if err := step.Fn(ctx); err != nil {
			log.Error("shutdown step failed", "step", step.Name, "err", err)
			continue
		}
		log.Debug("shutdown step done", "step", step.Name)
	}
}
