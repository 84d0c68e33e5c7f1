// Package metrics keeps in-memory counters and latency histograms per
// pipeline domain and renders them as a flat text snapshot for pull
// scraping. Purely observational: losing it on restart is fine and it
// must never affect the components it instruments.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric name prefixes. Every line is additionally mirrored under the
// legacy prefix for dashboards that predate the rename; the mirror is
// a string transformation of the finished snapshot, not a second
// counting path.
const (
	Prefix       = "pipeline_"
	LegacyPrefix = "dealscout_"
)

// Domains instrumented by the pipeline.
const (
	DomainJobs        = "jobs"
	DomainWebhooks    = "webhooks"
	DomainEnrichment  = "enrichment"
	DomainMatchmaking = "matchmaking"
	DomainExports     = "exports"
	DomainCalls       = "calls"
)

// bucketsByDomain fixes histogram boundaries (milliseconds) per domain.
var bucketsByDomain = map[string][]float64{
	DomainJobs:        {100, 500, 1000, 5000, 15000, 60000},
	DomainWebhooks:    {50, 100, 250, 500, 1000, 5000},
	DomainEnrichment:  {250, 1000, 5000, 15000, 30000},
	DomainMatchmaking: {100, 500, 2000, 10000},
	DomainExports:     {500, 2000, 10000, 30000},
	DomainCalls:       {100, 250, 500, 1000, 2500, 8000, 15000},
}

type counterKey struct {
	domain string
	name   string
	label  string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

// Registry holds one process's metrics.
type Registry struct {
	mu         sync.RWMutex
	service    string
	version    string
	startedAt  time.Time
	counters   map[counterKey]int64
	histograms map[counterKey]*histogram
}

// NewRegistry creates a registry tagged with the service identity
// reported on the build-info line.
func NewRegistry(service, version string) *Registry {
	return &Registry{
		service:    service,
		version:    version,
		startedAt:  time.Now(),
		counters:   make(map[counterKey]int64),
		histograms: make(map[counterKey]*histogram),
	}
}

// Inc increments a counter by one.
func (r *Registry) Inc(domain, name, label string) {
	r.Add(domain, name, label, 1)
}

// Add increments a counter by delta.
func (r *Registry) Add(domain, name, label string, delta int64) {
	key := counterKey{domain: domain, name: name, label: label}
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
}

// Observe records one latency sample into the domain's histogram.
func (r *Registry) Observe(domain, name, label string, d time.Duration) {
	ms := float64(d.Milliseconds())
	key := counterKey{domain: domain, name: name, label: label}

	r.mu.Lock()
	h, ok := r.histograms[key]
	if !ok {
		buckets := bucketsByDomain[domain]
		if buckets == nil {
			buckets = bucketsByDomain[DomainJobs]
		}
		h = &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
		r.histograms[key] = h
	}
	for i, bound := range h.buckets {
		if ms <= bound {
			h.counts[i]++
		}
	}
	h.sum += ms
	h.total++
	r.mu.Unlock()
}

// Counter returns the current value, for tests and handlers.
func (r *Registry) Counter(domain, name, label string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[counterKey{domain: domain, name: name, label: label}]
}

// Snapshot renders every metric as `name{label="v"} value` lines,
// prefixed with a build-info line, then mirrors the whole snapshot
// under the legacy prefix.
func (r *Registry) Snapshot() string {
	r.mu.RLock()
	lines := make([]string, 0, len(r.counters)+len(r.histograms)*3+1)
	lines = append(lines, fmt.Sprintf(
		`%sbuild_info{service=%q,version=%q} 1`, Prefix, r.service, r.version))

	for key, value := range r.counters {
		lines = append(lines, fmt.Sprintf("%s%s_%s_total%s %d",
			Prefix, key.domain, key.name, labelPart(key.label), value))
	}
	for key, h := range r.histograms {
		base := fmt.Sprintf("%s%s_%s_ms", Prefix, key.domain, key.name)
		for i, bound := range h.buckets {
			lines = append(lines, fmt.Sprintf(`%s_bucket{le="%g"%s} %d`,
				base, bound, labelSuffix(key.label), h.counts[i]))
		}
		lines = append(lines, fmt.Sprintf(`%s_bucket{le="+Inf"%s} %d`,
			base, labelSuffix(key.label), h.total))
		lines = append(lines, fmt.Sprintf("%s_sum%s %g", base, labelPart(key.label), h.sum))
		lines = append(lines, fmt.Sprintf("%s_count%s %d", base, labelPart(key.label), h.total))
	}
	r.mu.RUnlock()

	sort.Strings(lines[1:])
	return strings.Join(mirrorLegacy(lines), "\n") + "\n"
}

// mirrorLegacy appends a legacy-prefixed copy of every line. Kept as a
// pure string pass so the counting path stays single.
func mirrorLegacy(lines []string) []string {
	out := make([]string, 0, len(lines)*2)
	out = append(out, lines...)
	for _, line := range lines {
		out = append(out, LegacyPrefix+strings.TrimPrefix(line, Prefix))
	}
	return out
}

func labelPart(label string) string {
	if label == "" {
		return ""
	}
	return fmt.Sprintf("{kind=%q}", label)
}

func labelSuffix(label string) string {
	if label == "" {
		return ""
	}
	return fmt.Sprintf(",kind=%q", label)
}
