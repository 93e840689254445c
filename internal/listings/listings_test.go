package listings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"booster-trader/internal/cache"
	"booster-trader/internal/ratelimit"
	"booster-trader/internal/services/steam"
)

// fakeMarket serves a 350-item catalog in pages of 100, with the reported
// total growing from 320 to 350 mid-fetch and one transient failure.
type fakeMarket struct {
	items      []steam.SearchListing
	calls      int
	offsets    []int
	failOffset int // offset that fails once, -1 for never
	failed     bool
}

func newFakeMarket(n int) *fakeMarket {
	m := &fakeMarket{failOffset: -1}
	for i := 0; i < n; i++ {
		m.items = append(m.items, steam.SearchListing{
			Name:          fmt.Sprintf("item-%03d", i),
			HashName:      fmt.Sprintf("753-item-%03d", i),
			SellListings:  i % 7,
			SellPrice:     10 + i,
			SellPriceText: fmt.Sprintf("0,%02d€", (10+i)%100),
		})
	}
	return m
}

func (m *fakeMarket) FetchSearchPage(_ context.Context, _ steam.SearchQuery, start int, _ steam.Session) (*steam.SearchPage, bool, error) {
	m.calls++
	m.offsets = append(m.offsets, start)
	if start == m.failOffset && !m.failed {
		m.failed = true
		return nil, false, fmt.Errorf("connection reset")
	}
	total := len(m.items)
	if m.calls == 1 && total > 320 {
		total = 320 // first page underreports, like the live endpoint does
	}
	end := start + steam.PageSize
	if end > len(m.items) {
		end = len(m.items)
	}
	var results []steam.SearchListing
	if start < len(m.items) {
		results = m.items[start:end]
	}
	return &steam.SearchPage{Success: true, Start: start, TotalCount: total, Results: results}, false, nil
}

func newTestRepo(t *testing.T, market Fetcher) (*Repository, *cache.Store) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	counter := ratelimit.NewCounter(ratelimit.Limits{MaxQueries: 25, Cooldown: time.Minute})
	counter.SetSleep(func(time.Duration) {})
	return NewRepository(store, market, counter, steam.Session{}, "cookies.json"), store
}

func TestUpdate_FullCatalogNoGapsNoDuplicates(t *testing.T) {
	market := newFakeMarket(350)
	repo, _ := newTestRepo(t, market)

	all, err := repo.Update(context.Background(), steam.SearchQuery{}, "listings.json")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(all) != 350 {
		t.Fatalf("len(all)=%d want 350", len(all))
	}
	for i := 0; i < 350; i++ {
		key := fmt.Sprintf("753-item-%03d", i)
		l, ok := all[key]
		if !ok {
			t.Fatalf("missing %s", key)
		}
		if l.SellPrice != 10+i {
			t.Fatalf("%s sell price=%d want %d", key, l.SellPrice, 10+i)
		}
	}
	// 350 items at 100 per page is 4 pages, despite the first page
	// reporting only 320.
	if market.calls != 4 {
		t.Fatalf("calls=%d want 4", market.calls)
	}
}

func TestUpdate_RetriesSamePageOnTransientFailure(t *testing.T) {
	market := newFakeMarket(250)
	market.failOffset = 100
	repo, _ := newTestRepo(t, market)

	all, err := repo.Update(context.Background(), steam.SearchQuery{}, "listings.json")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(all) != 250 {
		t.Fatalf("len(all)=%d want 250", len(all))
	}
	wantOffsets := []int{0, 100, 100, 200}
	if len(market.offsets) != len(wantOffsets) {
		t.Fatalf("offsets=%v want %v", market.offsets, wantOffsets)
	}
	for i, o := range wantOffsets {
		if market.offsets[i] != o {
			t.Fatalf("offsets=%v want %v", market.offsets, wantOffsets)
		}
	}
}

func TestUpdate_ResumesFromCachedPartialResult(t *testing.T) {
	market := newFakeMarket(300)
	repo, store := newTestRepo(t, market)

	// Seed the cache with the first full page, as a crashed run would have.
	partial := make(map[string]Listing)
	for i := 0; i < 100; i++ {
		partial[fmt.Sprintf("753-item-%03d", i)] = Listing{SellPrice: 10 + i}
	}
	if err := store.Save("listings.json", partial); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	all, err := repo.Update(context.Background(), steam.SearchQuery{}, "listings.json")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(all) != 300 {
		t.Fatalf("len(all)=%d want 300", len(all))
	}
	if market.offsets[0] != 100 {
		t.Fatalf("first offset=%d want 100 (resume point)", market.offsets[0])
	}
}

func TestDownload_NoopWhenCacheExists(t *testing.T) {
	market := newFakeMarket(150)
	repo, store := newTestRepo(t, market)

	cached := map[string]Listing{"753-item-000": {SellPrice: 10}}
	if err := store.Save("listings.json", cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	all, err := repo.Download(context.Background(), steam.SearchQuery{}, "listings.json")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if market.calls != 0 {
		t.Fatalf("calls=%d want 0 (download must be a no-op)", market.calls)
	}
	if len(all) != 1 {
		t.Fatalf("len(all)=%d want cached size 1", len(all))
	}
}
