package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithSignalsCancelsWithParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithSignals(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestDrainRunsStepsInOrder(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	var ran []string
	Drain(log, time.Second,
		Step{"http", func(context.Context) error { ran = append(ran, "http"); return errors.New("busy") }},
		Step{"kafka", func(context.Context) error { ran = append(ran, "kafka"); return nil }},
		Step{"tracing", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			ran = append(ran, "tracing")
			return nil
		}},
	)
	assert.Equal(t, []string{"http", "kafka", "tracing"}, ran)
}
