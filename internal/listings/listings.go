package listings

import (
	"context"
	"errors"
	"fmt"
	"log"

	"booster-trader/internal/cache"
	"booster-trader/internal/ratelimit"
	"booster-trader/internal/services/steam"
)

// Listing is an immutable snapshot of one sell listing: the lowest ask in
// cents (0 means no ask observed), its volume and the display text.
type Listing struct {
	SellPrice     int    `json:"sell_price"`
	SellVolume    int    `json:"sell_volume"`
	SellPriceText string `json:"sell_price_text"`
}

// Fetcher is the piece of the market client the repository consumes.
type Fetcher interface {
	FetchSearchPage(ctx context.Context, query steam.SearchQuery, start int, session steam.Session) (*steam.SearchPage, bool, error)
}

const maxPageRetries = 5

// Repository incrementally downloads the full catalog of one tag/rarity
// partition, flushing partial progress to the cache after every page so an
// interrupted run can resume.
type Repository struct {
	store       *cache.Store
	client      Fetcher
	counter     *ratelimit.Counter
	session     steam.Session
	sessionFile string
}

func NewRepository(store *cache.Store, client Fetcher, counter *ratelimit.Counter, session steam.Session, sessionFile string) *Repository {
	return &Repository{
		store:       store,
		client:      client,
		counter:     counter,
		session:     session,
		sessionFile: sessionFile,
	}
}

// Download fetches the catalog from scratch. It is a no-op when the target
// cache file already exists.
func (r *Repository) Download(ctx context.Context, query steam.SearchQuery, file string) (map[string]Listing, error) {
	if r.store.Exists(file) {
		all := make(map[string]Listing)
		if err := r.store.Load(file, &all); err != nil {
			return nil, err
		}
		log.Printf("[listings] %s already downloaded (%d listings), skipping", file, len(all))
		return all, nil
	}
	return r.fetchAll(ctx, query, file, make(map[string]Listing))
}

// Update resumes from a previously cached partial result and continues until
// the catalog is complete.
func (r *Repository) Update(ctx context.Context, query steam.SearchQuery, file string) (map[string]Listing, error) {
	all := make(map[string]Listing)
	if err := r.store.Load(file, &all); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	return r.fetchAll(ctx, query, file, all)
}

func (r *Repository) fetchAll(ctx context.Context, query steam.SearchQuery, file string, all map[string]Listing) (map[string]Listing, error) {
	// Resume at the page the accumulator reaches; the name-ascending sort
	// keeps offsets stable across runs.
	page := len(all) / steam.PageSize
	// totalCount fluctuates between pages; only the running max is trusted,
	// so a shrinking total can never truncate the crawl.
	maxTotal := 0
	retries := 0

	for {
		res, changed, err := r.client.FetchSearchPage(ctx, query, page*steam.PageSize, r.session)
		if r.counter.Tick() {
			if err := r.store.Save(file, all); err != nil {
				return nil, err
			}
		}
		if changed {
			if err := r.session.Save(r.store, r.sessionFile); err != nil {
				log.Printf("[listings] session flush failed: %v", err)
			}
		}
		if err != nil {
			if errors.Is(err, steam.ErrRateLimited) {
				return nil, err
			}
			retries++
			if retries > maxPageRetries {
				return nil, fmt.Errorf("page %d failed %d times: %w", page, retries, err)
			}
			log.Printf("[listings] page %d failed (%v), retrying same offset", page, err)
			continue
		}
		retries = 0

		for _, item := range res.Results {
			all[item.HashName] = Listing{
				SellPrice:     item.SellPrice,
				SellVolume:    item.SellListings,
				SellPriceText: item.SellPriceText,
			}
		}
		if res.TotalCount > maxTotal {
			maxTotal = res.TotalCount
		}
		page++

		if err := r.store.Save(file, all); err != nil {
			return nil, err
		}
		log.Printf("[listings] page %d done, %d/%d listings", page, len(all), maxTotal)

		if page*steam.PageSize >= maxTotal {
			break
		}
		if len(res.Results) == 0 {
			// The reported total overshot the real catalog; stop rather
			// than spin on empty pages.
			log.Printf("[listings] empty page before reported total %d, stopping", maxTotal)
			break
		}
	}
	return all, nil
}
