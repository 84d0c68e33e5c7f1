package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	reg := NewRegistry("pipeline-test", "0.0.1")

	reg.Inc(DomainJobs, "completed", "scrape")
	reg.Inc(DomainJobs, "completed", "scrape")
	reg.Add(DomainJobs, "failed", "", 3)

	assert.Equal(t, int64(2), reg.Counter(DomainJobs, "completed", "scrape"))
	assert.Equal(t, int64(3), reg.Counter(DomainJobs, "failed", ""))
	assert.Equal(t, int64(0), reg.Counter(DomainJobs, "completed", "enrich"))

	snap := reg.Snapshot()
	assert.Contains(t, snap, `pipeline_jobs_completed_total{kind="scrape"} 2`)
	assert.Contains(t, snap, "pipeline_jobs_failed_total 3")
}

func TestRegistry_BuildInfoFirst(t *testing.T) {
	reg := NewRegistry("pipeline-test", "0.0.1")
	reg.Inc(DomainWebhooks, "delivered", "")

	snap := reg.Snapshot()
	lines := strings.Split(strings.TrimSpace(snap), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, `pipeline_build_info{service="pipeline-test",version="0.0.1"} 1`, lines[0])
}

func TestRegistry_LegacyMirror(t *testing.T) {
	reg := NewRegistry("pipeline-test", "0.0.1")
	reg.Inc(DomainCalls, "cache_hit", "zillow")

	snap := reg.Snapshot()
	lines := strings.Split(strings.TrimSpace(snap), "\n")

	// every line appears once under each prefix
	var pipeline, legacy int
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, Prefix):
			pipeline++
		case strings.HasPrefix(line, LegacyPrefix):
			legacy++
		default:
			t.Fatalf("unexpected prefix on line %q", line)
		}
	}
	assert.Equal(t, pipeline, legacy)

	assert.Contains(t, snap, `pipeline_calls_cache_hit_total{kind="zillow"} 1`)
	assert.Contains(t, snap, `dealscout_calls_cache_hit_total{kind="zillow"} 1`)
}

func TestRegistry_Histogram(t *testing.T) {
	reg := NewRegistry("pipeline-test", "0.0.1")

	reg.Observe(DomainWebhooks, "delivery_latency", "", 30*time.Millisecond)
	reg.Observe(DomainWebhooks, "delivery_latency", "", 200*time.Millisecond)
	reg.Observe(DomainWebhooks, "delivery_latency", "", 7*time.Second)

	snap := reg.Snapshot()

	// webhook buckets: 50, 100, 250, 500, 1000, 5000
	assert.Contains(t, snap, `pipeline_webhooks_delivery_latency_ms_bucket{le="50"} 1`)
	assert.Contains(t, snap, `pipeline_webhooks_delivery_latency_ms_bucket{le="250"} 2`)
	assert.Contains(t, snap, `pipeline_webhooks_delivery_latency_ms_bucket{le="5000"} 2`)
	assert.Contains(t, snap, `pipeline_webhooks_delivery_latency_ms_bucket{le="+Inf"} 3`)
	assert.Contains(t, snap, "pipeline_webhooks_delivery_latency_ms_count 3")
	assert.Contains(t, snap, "pipeline_webhooks_delivery_latency_ms_sum 7230")
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	reg := NewRegistry("pipeline-test", "0.0.1")
	reg.Inc(DomainWebhooks, "delivered", "")
	reg.Inc(DomainJobs, "enqueued", "")
	reg.Inc(DomainCalls, "dispatched", "")

	snap := reg.Snapshot()
	lines := strings.Split(strings.TrimSpace(snap), "\n")

	// ignoring the build-info line and the legacy mirror, the
	// pipeline block is sorted
	var metricLines []string
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, Prefix) {
			metricLines = append(metricLines, line)
		}
	}
	require.Len(t, metricLines, 3)
	assert.True(t, metricLines[0] < metricLines[1])
	assert.True(t, metricLines[1] < metricLines[2])
}
