package cooldown

import (
	"errors"
	"fmt"
	"time"

	"booster-trader/internal/cache"
)

// Duration is the crafting cooldown the marketplace imposes per item.
const Duration = 24 * time.Hour

// timeLayout matches the marketplace display format, which omits the year.
const timeLayout = "2 Jan @ 3:04pm"

// Tracker persists the "next craft allowed" timestamp per item id.
//
// Because timestamps are stored without a year, Craftable reattaches the
// current year and accepts a date as elapsed when it is either in the past
// or further in the future than one cooldown period could ever put it
// (meaning it must refer to last year). The reconciliation is only wrong if
// no run happens for more than 364 days, which is accepted.
type Tracker struct {
	store *cache.Store
	file  string
	times map[string]string
}

func NewTracker(store *cache.Store, file string) (*Tracker, error) {
	t := &Tracker{store: store, file: file, times: make(map[string]string)}
	if err := store.Load(file, &t.times); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	if t.times == nil {
		t.times = make(map[string]string)
	}
	return t, nil
}

// MarkCrafted records that the item was crafted at now and persists the
// resulting next-allowed timestamp immediately.
func (t *Tracker) MarkCrafted(itemID string, now time.Time) error {
	t.times[itemID] = now.Add(Duration).Format(timeLayout)
	return t.store.Save(t.file, t.times)
}

// SetNextCreationTime stores an externally observed next-allowed timestamp
// (already in display format) without shifting it.
func (t *Tracker) SetNextCreationTime(itemID, formatted string) error {
	t.times[itemID] = formatted
	return t.store.Save(t.file, t.times)
}

// NextCreationTime returns the stored display timestamp, empty if none.
func (t *Tracker) NextCreationTime(itemID string) string {
	return t.times[itemID]
}

// HasEverCrafted reports whether any craft has ever been recorded for the
// item. Used by the optional previously-tracked filter.
func (t *Tracker) HasEverCrafted(itemID string) bool {
	_, ok := t.times[itemID]
	return ok
}

// Craftable reports whether the item may be crafted at now. An item with no
// stored timestamp is always craftable.
func (t *Tracker) Craftable(itemID string, now time.Time) (bool, error) {
	stored, ok := t.times[itemID]
	if !ok {
		return true, nil
	}
	parsed, err := time.Parse(timeLayout, stored)
	if err != nil {
		return false, fmt.Errorf("parse next creation time %q: %w", stored, err)
	}

	year := now.Year()
	// The only year boundary the format can actually straddle: reading
	// "1 Jan" on Dec 31 means tomorrow, not 364 days ago.
	if now.Month() == time.December && now.Day() == 31 &&
		parsed.Month() == time.January && parsed.Day() == 1 {
		year++
	}
	next := time.Date(year, parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())

	delta := next.Sub(now)
	// delta < 0: cooldown elapsed this year. delta > Duration: the naive
	// reading lands further ahead than one cooldown allows, so the stored
	// date belongs to last year and has long elapsed.
	return delta < 0 || delta > Duration, nil
}
