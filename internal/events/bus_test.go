package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dealscout/pipeline/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishFansOut(t *testing.T) {
	bus := NewBus(testLogger())

	var got []string
	bus.Subscribe("job.completed", func(ctx context.Context, ev domain.Event) error {
		got = append(got, "first:"+ev.JobID)
		return nil
	})
	bus.Subscribe("job.completed", func(ctx context.Context, ev domain.Event) error {
		got = append(got, "second:"+ev.JobID)
		return nil
	})
	bus.Subscribe("job.failed", func(ctx context.Context, ev domain.Event) error {
		got = append(got, "failed:"+ev.JobID)
		return nil
	})

	bus.Publish(context.Background(), domain.Event{Type: "job.completed", JobID: "j-1"})

	assert.Equal(t, []string{"first:j-1", "second:j-1"}, got)
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(testLogger())

	var reached bool
	bus.Subscribe("job.completed", func(ctx context.Context, ev domain.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe("job.completed", func(ctx context.Context, ev domain.Event) error {
		reached = true
		return nil
	})

	bus.Publish(context.Background(), domain.Event{Type: "job.completed", JobID: "j-1"})

	assert.True(t, reached)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus(testLogger())
	// publishing with no subscribers is a no-op
	bus.Publish(context.Background(), domain.Event{Type: "enrichment.completed"})
}
