package adapter

import (
	"context"
	"fmt"

	"github.com/dealscout/pipeline/internal/vendorcall"
)

const countyDeedsAdapterVersion = "countydeeds/2.1.1"

// CountyDeeds pulls recorded deed and lien data through the gateway's
// countydeeds provider. Deed feeds always need a date window; when the
// job carries none the adapter asks for the provider default window.
type CountyDeeds struct {
	gateway *vendorcall.Gateway
	cost    int64
}

// NewCountyDeeds creates the adapter.
func NewCountyDeeds(gateway *vendorcall.Gateway, estimatedCents int64) *CountyDeeds {
	return &CountyDeeds{gateway: gateway, cost: estimatedCents}
}

// Name implements Adapter.
func (c *CountyDeeds) Name() string { return "countydeeds" }

// Fetch implements Adapter.
func (c *CountyDeeds) Fetch(ctx context.Context, zip string, dr DateRange, filters map[string]string) (*Result, error) {
	params := map[string]string{
		"zip":    zip,
		"window": "default",
	}
	if dr.From != "" {
		delete(params, "window")
		params["recorded_from"] = dr.From
		params["recorded_to"] = dr.To
	}
	if docType, ok := filters["doc_type"]; ok {
		params["doc_type"] = docType
	}

	resp, err := c.gateway.Call(ctx, vendorcall.Request{
		Provider:       "countydeeds",
		Endpoint:       "records/by-zip",
		Params:         params,
		EstimatedCents: c.cost,
	})
	if err != nil {
		return nil, fmt.Errorf("countydeeds fetch zip %s: %w", zip, err)
	}

	items := applyFilters(resp.Items, filters)
	return &Result{
		Items:      items,
		TotalItems: len(resp.Items),
		Version:    countyDeedsAdapterVersion,
	}, nil
}
