package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
)

type fakeSubSource struct {
	subs []domain.WebhookSubscription
}

func (f *fakeSubSource) ActiveSubscriptions(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	var out []domain.WebhookSubscription
	for _, sub := range f.subs {
		if sub.IsActive && sub.Wants(eventType) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func TestEmitter_FansOutPerSubscription(t *testing.T) {
	source := &fakeSubSource{subs: []domain.WebhookSubscription{
		{ID: "sub-1", IsActive: true, EventTypes: domain.StringList{domain.EventJobCompleted}},
		{ID: "sub-2", IsActive: true, EventTypes: domain.StringList{domain.EventJobCompleted, domain.EventJobFailed}},
		{ID: "sub-3", IsActive: true, EventTypes: domain.StringList{domain.EventJobFailed}},
	}}
	pub := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(logger, source, pub, metrics.NewRegistry("pipeline-test", "0.0.1"))

	n, err := e.Emit(context.Background(), domain.Event{
		ID:    "e-1",
		Type:  domain.EventJobCompleted,
		JobID: "j-1",
		Data:  json.RawMessage(`{"items":[]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.tasks, 2)

	// every task carries the same payload in the subscriber wire shape
	var body struct {
		Event string `json:"event"`
		Data  struct {
			EventID string          `json:"event_id"`
			JobID   string          `json:"job_id"`
			Data    json.RawMessage `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pub.tasks[0].Payload, &body))
	assert.Equal(t, domain.EventJobCompleted, body.Event)
	assert.Equal(t, "e-1", body.Data.EventID)
	assert.Equal(t, "j-1", body.Data.JobID)
	assert.JSONEq(t, `{"items":[]}`, string(body.Data.Data))

	assert.Equal(t, "sub-1", pub.tasks[0].SubscriptionID)
	assert.Equal(t, "sub-2", pub.tasks[1].SubscriptionID)
}

func TestEmitter_NoMatchingSubscriptions(t *testing.T) {
	pub := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(logger, &fakeSubSource{}, pub, metrics.NewRegistry("pipeline-test", "0.0.1"))

	n, err := e.Emit(context.Background(), domain.Event{Type: domain.EventJobCompleted})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.tasks)
}
