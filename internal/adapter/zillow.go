package adapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dealscout/pipeline/internal/vendorcall"
)

const zillowAdapterVersion = "zillow/1.4.0"

// Zillow scrapes listing data through the gateway's zillow provider.
type Zillow struct {
	gateway *vendorcall.Gateway
	cost    int64
}

// NewZillow creates the adapter. estimatedCents is the per-call cost
// reserved against the provider's daily cap.
func NewZillow(gateway *vendorcall.Gateway, estimatedCents int64) *Zillow {
	return &Zillow{gateway: gateway, cost: estimatedCents}
}

// Name implements Adapter.
func (z *Zillow) Name() string { return "zillow" }

// Fetch implements Adapter.
func (z *Zillow) Fetch(ctx context.Context, zip string, dr DateRange, filters map[string]string) (*Result, error) {
	params := map[string]string{
		"zip": zip,
	}
	if dr.From != "" {
		params["listed_after"] = dr.From
		params["listed_before"] = dr.To
	}
	if minPrice, ok := filters["min_price"]; ok {
		if _, err := strconv.Atoi(minPrice); err != nil {
			return nil, fmt.Errorf("zillow: bad min_price filter %q", minPrice)
		}
		params["price_min"] = minPrice
	}

	resp, err := z.gateway.Call(ctx, vendorcall.Request{
		Provider:       "zillow",
		Endpoint:       "listings/search",
		Params:         params,
		EstimatedCents: z.cost,
	})
	if err != nil {
		return nil, fmt.Errorf("zillow fetch zip %s: %w", zip, err)
	}

	items := applyFilters(resp.Items, filters)
	return &Result{
		Items:      items,
		TotalItems: len(resp.Items),
		Version:    zillowAdapterVersion,
	}, nil
}
