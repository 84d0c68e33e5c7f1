package vendorcall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_HitAndExpiry(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCache(15 * time.Minute)
	c.now = func() time.Time { return current }

	req := Request{Provider: "zillow", Endpoint: "listings", Params: map[string]string{"zip": "08102"}}
	c.Put(req, &Response{Provider: "zillow", CostCents: 25})

	got, hit := c.Get(req)
	require.True(t, hit)
	assert.Equal(t, int64(25), got.CostCents)

	// still fresh just inside the TTL
	current = current.Add(14 * time.Minute)
	_, hit = c.Get(req)
	assert.True(t, hit)

	// stale past the TTL
	current = current.Add(2 * time.Minute)
	_, hit = c.Get(req)
	assert.False(t, hit)
}

func TestCache_KeyNormalization(t *testing.T) {
	c := NewCache(time.Minute)

	put := Request{Provider: "zillow", Endpoint: "listings", Params: map[string]string{"a": "1", "b": "2"}}
	c.Put(put, &Response{Provider: "zillow"})

	// same params, different map construction order
	_, hit := c.Get(Request{Provider: "zillow", Endpoint: "listings", Params: map[string]string{"b": "2", "a": "1"}})
	assert.True(t, hit)

	// different param value misses
	_, hit = c.Get(Request{Provider: "zillow", Endpoint: "listings", Params: map[string]string{"a": "1", "b": "3"}})
	assert.False(t, hit)

	// different endpoint misses
	_, hit = c.Get(Request{Provider: "zillow", Endpoint: "detail", Params: map[string]string{"a": "1", "b": "2"}})
	assert.False(t, hit)
}

func TestCache_Purge(t *testing.T) {
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return current }

	c.Put(Request{Provider: "zillow", Endpoint: "a"}, &Response{})
	current = current.Add(30 * time.Second)
	c.Put(Request{Provider: "zillow", Endpoint: "b"}, &Response{})

	current = current.Add(45 * time.Second)
	c.Purge()

	_, hit := c.Get(Request{Provider: "zillow", Endpoint: "a"})
	assert.False(t, hit)
	_, hit = c.Get(Request{Provider: "zillow", Endpoint: "b"})
	assert.True(t, hit)
}
