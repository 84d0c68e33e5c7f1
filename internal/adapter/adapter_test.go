package adapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscout/pipeline/internal/domain"
	"github.com/dealscout/pipeline/internal/metrics"
	"github.com/dealscout/pipeline/internal/vendorcall"
)

func testGateway(t *testing.T, handler http.HandlerFunc) (*vendorcall.Gateway, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	g := vendorcall.NewGateway(vendorcall.Config{
		Providers: map[string]vendorcall.ProviderConfig{
			"zillow":      {BaseURL: srv.URL, Timeout: 2 * time.Second},
			"countydeeds": {BaseURL: srv.URL, Timeout: 2 * time.Second},
		},
		CacheTTL: time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewRegistry("adapter-test", "test"))
	return g, srv.Close
}

func TestRegistry(t *testing.T) {
	g, done := testGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	defer done()

	reg := NewRegistry(NewZillow(g, 25), NewCountyDeeds(g, 15))

	a, err := reg.Get("zillow")
	require.NoError(t, err)
	assert.Equal(t, "zillow", a.Name())

	_, err = reg.Get("redfin")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"zillow", "countydeeds"}, reg.Sources())
}

func TestZillow_Fetch(t *testing.T) {
	var gotQuery map[string][]string
	g, done := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"items": [
			{"property_id": "p-1", "zip": "08102", "owner": "acme llc"},
			{"property_id": "p-2", "zip": "08102", "owner": "jane roe"}
		], "cost_cents": 25}`))
	})
	defer done()

	z := NewZillow(g, 25)

	res, err := z.Fetch(context.Background(), "08102",
		DateRange{From: "2026-01-01", To: "2026-01-31"},
		map[string]string{"min_price": "100000", "owner": "acme llc"})
	require.NoError(t, err)

	// date range and price filter shape the request
	assert.Equal(t, []string{"08102"}, gotQuery["zip"])
	assert.Equal(t, []string{"2026-01-01"}, gotQuery["listed_after"])
	assert.Equal(t, []string{"2026-01-31"}, gotQuery["listed_before"])
	assert.Equal(t, []string{"100000"}, gotQuery["price_min"])

	// owner filter applied locally, total still reports the fetch size
	require.Len(t, res.Items, 1)
	assert.Equal(t, "p-1", res.Items[0].PropertyID)
	assert.Equal(t, 2, res.TotalItems)
	assert.LessOrEqual(t, len(res.Items), res.TotalItems)
	assert.NotEmpty(t, res.Version)
}

func TestZillow_BadMinPrice(t *testing.T) {
	g, done := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	defer done()

	z := NewZillow(g, 25)
	_, err := z.Fetch(context.Background(), "08102", DateRange{}, map[string]string{"min_price": "cheap"})
	assert.Error(t, err)
}

func TestCountyDeeds_Fetch(t *testing.T) {
	var gotQuery map[string][]string
	g, done := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"items": [
			{"property_id": "p-1", "zip": "08030", "distress_flags": ["lis_pendens"]},
			{"property_id": "p-2", "zip": "08030"}
		], "cost_cents": 15}`))
	})
	defer done()

	c := NewCountyDeeds(g, 15)

	res, err := c.Fetch(context.Background(), "08030", DateRange{}, map[string]string{"distress": "true"})
	require.NoError(t, err)

	// without a date range the default window is requested
	assert.Equal(t, []string{"default"}, gotQuery["window"])

	// distress filter keeps only flagged records
	require.Len(t, res.Items, 1)
	assert.Equal(t, "p-1", res.Items[0].PropertyID)
	assert.Equal(t, 2, res.TotalItems)
}

func TestApplyFilters(t *testing.T) {
	items := []domain.Record{
		{PropertyID: "p-1", Owner: "acme llc", DistressFlags: []string{"tax_lien"}},
		{PropertyID: "p-2", Owner: "jane roe"},
	}

	// no filters keeps everything
	assert.Len(t, applyFilters(items, nil), 2)

	kept := applyFilters(items, map[string]string{"distress": "true"})
	require.Len(t, kept, 1)
	assert.Equal(t, "p-1", kept[0].PropertyID)

	kept = applyFilters(items, map[string]string{"owner": "jane roe"})
	require.Len(t, kept, 1)
	assert.Equal(t, "p-2", kept[0].PropertyID)

	// unknown keys are ignored
	assert.Len(t, applyFilters(items, map[string]string{"beds": "3"}), 2)
}
