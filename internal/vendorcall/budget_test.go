package vendorcall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_ReserveCommitRelease(t *testing.T) {
	b := NewBudget(map[string]int64{"zillow": 100})

	require.NoError(t, b.Reserve("zillow", 25))
	b.Commit("zillow", 60, 25)
	assert.Equal(t, int64(60), b.SpentToday("zillow"))

	// 60 + 50 would cross the cap
	err := b.Reserve("zillow", 50)
	assert.ErrorIs(t, err, ErrCapExceeded)

	// exactly reaching the cap is allowed
	require.NoError(t, b.Reserve("zillow", 40))
	b.Commit("zillow", 40, 40)

	err = b.Reserve("zillow", 1)
	assert.ErrorIs(t, err, ErrCapExceeded)
}

func TestBudget_ReserveHoldsEstimate(t *testing.T) {
	b := NewBudget(map[string]int64{"zillow": 100})

	// two in-flight holds of 60 cannot jointly overshoot the cap
	require.NoError(t, b.Reserve("zillow", 60))
	assert.ErrorIs(t, b.Reserve("zillow", 60), ErrCapExceeded)
	assert.Equal(t, int64(60), b.SpentToday("zillow"))

	// a released hold frees the headroom again
	b.Release("zillow", 60)
	assert.Equal(t, int64(0), b.SpentToday("zillow"))
	require.NoError(t, b.Reserve("zillow", 60))
}

func TestBudget_CommitReconcilesActualCost(t *testing.T) {
	b := NewBudget(map[string]int64{"zillow": 100})

	// actual above the estimate
	require.NoError(t, b.Reserve("zillow", 25))
	b.Commit("zillow", 30, 25)
	assert.Equal(t, int64(30), b.SpentToday("zillow"))

	// actual below the estimate
	require.NoError(t, b.Reserve("zillow", 25))
	b.Commit("zillow", 10, 25)
	assert.Equal(t, int64(40), b.SpentToday("zillow"))
}

func TestBudget_UncappedProvider(t *testing.T) {
	b := NewBudget(nil)

	require.NoError(t, b.Reserve("countydeeds", 1<<40))
	b.Commit("countydeeds", 500, 1<<40)
	assert.Equal(t, int64(500), b.SpentToday("countydeeds"))
}

func TestBudget_UTCMidnightRollover(t *testing.T) {
	current := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	b := NewBudget(map[string]int64{"zillow": 100})
	b.now = func() time.Time { return current }

	b.Commit("zillow", 100, 0)
	assert.ErrorIs(t, b.Reserve("zillow", 1), ErrCapExceeded)

	// a few minutes later, same day: still capped
	current = current.Add(5 * time.Minute)
	assert.ErrorIs(t, b.Reserve("zillow", 1), ErrCapExceeded)

	// past UTC midnight the accumulator resets lazily
	current = current.Add(10 * time.Minute)
	require.NoError(t, b.Reserve("zillow", 100))
	b.Release("zillow", 100)
	assert.Equal(t, int64(0), b.SpentToday("zillow"))
}

func TestBudget_SettleAfterRolloverClampsAtZero(t *testing.T) {
	current := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	b := NewBudget(map[string]int64{"zillow": 100})
	b.now = func() time.Time { return current }

	require.NoError(t, b.Reserve("zillow", 80))

	// the day flips while the call is in flight; settling the stale
	// hold must not drive the fresh accumulator negative
	current = current.Add(2 * time.Minute)
	b.Commit("zillow", 30, 80)
	assert.Equal(t, int64(0), b.SpentToday("zillow"))

	require.NoError(t, b.Reserve("zillow", 80))
	current = current.Add(24 * time.Hour)
	b.Release("zillow", 80)
	assert.Equal(t, int64(0), b.SpentToday("zillow"))
}

func TestBudget_ProvidersIndependent(t *testing.T) {
	b := NewBudget(map[string]int64{"zillow": 100, "countydeeds": 100})

	b.Commit("zillow", 100, 0)
	assert.ErrorIs(t, b.Reserve("zillow", 1), ErrCapExceeded)
	assert.NoError(t, b.Reserve("countydeeds", 100))
}
