package vendorcall

import (
	"sync"
	"time"
)

// Budget tracks daily spend per provider in cents. The accumulator
// resets lazily at UTC midnight on access; no sweeper goroutine runs.
type Budget struct {
	mu   sync.Mutex
	caps map[string]int64
	now  func() time.Time

	spent map[string]int64
	day   map[string]string
}

// NewBudget creates a budget with per-provider daily caps in cents.
// A provider absent from caps is uncapped.
func NewBudget(capsByProvider map[string]int64) *Budget {
	caps := make(map[string]int64, len(capsByProvider))
	for p, c := range capsByProvider {
		caps[p] = c
	}
	return &Budget{
		caps:  caps,
		now:   time.Now,
		spent: make(map[string]int64),
		day:   make(map[string]string),
	}
}

// Reserve holds estimatedCents against today's accumulator, so
// concurrent callers cannot jointly overshoot the cap. The hold must be
// settled with Commit on success or Release on failure.
func (b *Budget) Reserve(provider string, estimatedCents int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(provider)
	cap, capped := b.caps[provider]
	if capped && b.spent[provider]+estimatedCents > cap {
		return ErrCapExceeded
	}
	b.spent[provider] += estimatedCents
	return nil
}

// Commit replaces a reservation with the actual spend. When the UTC day
// rolled over between Reserve and Commit the reconciliation clamps at
// zero instead of going negative.
func (b *Budget) Commit(provider string, actualCents, estimatedCents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(provider)
	b.spent[provider] += actualCents - estimatedCents
	if b.spent[provider] < 0 {
		b.spent[provider] = 0
	}
}

// Release returns a reservation after a failed call.
func (b *Budget) Release(provider string, estimatedCents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(provider)
	b.spent[provider] -= estimatedCents
	if b.spent[provider] < 0 {
		b.spent[provider] = 0
	}
}

// SpentToday returns the provider's accumulated spend for the current
// UTC day.
func (b *Budget) SpentToday(provider string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(provider)
	return b.spent[provider]
}

// rollover resets the accumulator when the UTC day has changed since
// the last access. Caller holds the mutex.
func (b *Budget) rollover(provider string) {
	today := b.now().UTC().Format("2006-01-02")
	if b.day[provider] != today {
		b.day[provider] = today
		b.spent[provider] = 0
	}
}
