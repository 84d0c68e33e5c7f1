package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipsForCounty(t *testing.T) {
	zips, ok := ZipsForCounty("camden")
	require.True(t, ok)
	assert.Contains(t, zips, "08102")

	// lookup is case-insensitive
	upper, ok := ZipsForCounty("Camden")
	require.True(t, ok)
	assert.Equal(t, zips, upper)

	// returned slice is a copy
	zips[0] = "00000"
	again, ok := ZipsForCounty("camden")
	require.True(t, ok)
	assert.NotEqual(t, "00000", again[0])

	_, ok = ZipsForCounty("sussex")
	assert.False(t, ok)
}

func TestCounties(t *testing.T) {
	names := Counties()
	assert.Equal(t, []string{"atlantic", "burlington", "camden", "gloucester"}, names)
}
