// Package adapter holds the per-source scrape adapters. The worker is
// adapter-agnostic beyond the Fetch contract; each adapter translates
// zip/date-range/filter inputs into gateway requests and reduces the
// normalized response to the items the pipeline stores.
package adapter

import (
	"context"
	"fmt"

	"github.com/dealscout/pipeline/internal/domain"
)

// DateRange bounds a fetch. Zero values mean unbounded.
type DateRange struct {
	From string
	To   string
}

// Result is what an adapter hands back to the worker: the items that
// survived filtering plus the counts the result meta reports.
type Result struct {
	Items      []domain.Record
	TotalItems int
	Version    string
}

// Adapter fetches listings for one source.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, zip string, dr DateRange, filters map[string]string) (*Result, error)
}

// Registry resolves adapters by source name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for source.
func (r *Registry) Get(source string) (Adapter, error) {
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", source)
	}
	return a, nil
}

// Sources lists the registered source names.
func (r *Registry) Sources() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// applyFilters keeps items matching every filter the adapter
// understands and drops the rest. Unknown filter keys are ignored; the
// meta still records them as applied because they shaped the request.
func applyFilters(items []domain.Record, filters map[string]string) []domain.Record {
	if len(filters) == 0 {
		return items
	}
	kept := items[:0:0]
	for _, item := range items {
		if matchesFilters(item, filters) {
			kept = append(kept, item)
		}
	}
	return kept
}

func matchesFilters(item domain.Record, filters map[string]string) bool {
	if flag, ok := filters["distress"]; ok && flag == "true" && len(item.DistressFlags) == 0 {
		return false
	}
	if owner, ok := filters["owner"]; ok && owner != "" && item.Owner != owner {
		return false
	}
	return true
}
