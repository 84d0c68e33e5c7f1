package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/geo"
	"github.com/dealscout/pipeline/internal/metrics"
)

type fakeStore struct {
	jobs []domain.Job
	err  error
}

func (f *fakeStore) TodaysScrapeJobs(ctx context.Context) ([]domain.Job, error) {
	return f.jobs, f.err
}

type fakeEnqueuer struct {
	created  []domain.ScrapePayload
	failZips map[string]bool
	nextID   int
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, kind string, payload json.RawMessage) (*domain.Job, error) {
	var p domain.ScrapePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	if f.failZips[p.Zip] {
		return nil, errors.New("publish failed")
	}
	f.nextID++
	f.created = append(f.created, p)
	return &domain.Job{
		JobID:   fmt.Sprintf("job-%d", f.nextID),
		Kind:    kind,
		Payload: payload,
		Status:  domain.JobStatusQueued,
	}, nil
}

func newTestPlanner(store *fakeStore, enq *fakeEnqueuer) *Planner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry("pipeline-test", "0.0.1")
	return NewPlanner(logger, store, enq, []string{"zillow", "countydeeds"}, reg)
}

func scrapeJob(source, zip string) domain.Job {
	payload, _ := json.Marshal(domain.ScrapePayload{Source: source, Zip: zip})
	return domain.Job{Kind: domain.JobKindScrape, Payload: payload}
}

func TestPlanner_ZipExpansion(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := newTestPlanner(&fakeStore{}, enq)

	res, err := p.Plan(context.Background(), Request{
		Sources: []string{"zillow", "countydeeds"},
		Zips:    []string{"08102", "08030", "08102"}, // duplicate zip collapses
	})
	require.NoError(t, err)

	assert.Len(t, res.Created, 4)
	assert.Empty(t, res.Skipped)
	assert.Len(t, enq.created, 4)
}

func TestPlanner_CountyExpansion(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := newTestPlanner(&fakeStore{}, enq)

	camden, ok := geo.ZipsForCounty("camden")
	require.True(t, ok)

	res, err := p.Plan(context.Background(), Request{
		Sources:  []string{"zillow"},
		Counties: []string{"camden"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Created, len(camden))
	assert.Empty(t, res.Skipped)
}

func TestPlanner_ZipAndCountyOverlap(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := newTestPlanner(&fakeStore{}, enq)

	camden, ok := geo.ZipsForCounty("camden")
	require.True(t, ok)

	// 08102 belongs to camden; the pair must not be enqueued twice
	res, err := p.Plan(context.Background(), Request{
		Sources:  []string{"zillow"},
		Zips:     []string{"08102"},
		Counties: []string{"camden"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Created, len(camden))
}

func TestPlanner_UnknownCountySkipped(t *testing.T) {
	p := newTestPlanner(&fakeStore{}, &fakeEnqueuer{})

	res, err := p.Plan(context.Background(), Request{
		Sources:  []string{"zillow"},
		Zips:     []string{"08102"},
		Counties: []string{"sussex"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Created, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "sussex", res.Skipped[0].County)
	assert.Equal(t, "unknown county", res.Skipped[0].Reason)
}

func TestPlanner_UnknownSourceSkipped(t *testing.T) {
	p := newTestPlanner(&fakeStore{}, &fakeEnqueuer{})

	res, err := p.Plan(context.Background(), Request{
		Sources: []string{"redfin", "zillow"},
		Zips:    []string{"08102"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Created, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "redfin", res.Skipped[0].Source)
	assert.Equal(t, "unknown source", res.Skipped[0].Reason)
}

func TestPlanner_SameDayDuplicateSkipped(t *testing.T) {
	store := &fakeStore{jobs: []domain.Job{scrapeJob("zillow", "08102")}}
	p := newTestPlanner(store, &fakeEnqueuer{})

	res, err := p.Plan(context.Background(), Request{
		Sources: []string{"zillow"},
		Zips:    []string{"08102", "08030"},
	})
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, "08030", res.Created[0].Zip)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "duplicate for today", res.Skipped[0].Reason)
}

func TestPlanner_RerunIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	enq := &fakeEnqueuer{}
	p := newTestPlanner(store, enq)

	req := Request{Sources: []string{"zillow"}, Zips: []string{"08102", "08030"}}

	first, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Created, 2)

	// second run sees the first run's jobs as today's
	for _, c := range first.Created {
		store.jobs = append(store.jobs, scrapeJob(c.Source, c.Zip))
	}

	second, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, second.Skipped, 2)
}

func TestPlanner_EnqueueFailureSkipsPairOnly(t *testing.T) {
	enq := &fakeEnqueuer{failZips: map[string]bool{"08030": true}}
	p := newTestPlanner(&fakeStore{}, enq)

	res, err := p.Plan(context.Background(), Request{
		Sources: []string{"zillow"},
		Zips:    []string{"08102", "08030", "08031"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Created, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "08030", res.Skipped[0].Zip)
	assert.Contains(t, res.Skipped[0].Reason, "enqueue failed")
}

func TestPlanner_Validation(t *testing.T) {
	p := newTestPlanner(&fakeStore{}, &fakeEnqueuer{})

	_, err := p.Plan(context.Background(), Request{Zips: []string{"08102"}})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	_, err = p.Plan(context.Background(), Request{Sources: []string{"zillow"}})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
