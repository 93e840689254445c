package orderbook

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"booster-trader/internal/cache"
	"booster-trader/internal/ratelimit"
	"booster-trader/internal/services/steam"
)

// TTL is how long a fetched entry, successful or not, is considered fresh.
// Keeping failed fetches fresh too trades staleness for query budget: a
// permanently broken listing is not re-queried on every run.
const TTL = 72 * time.Hour

// Marketability is a three-valued answer instead of a bool-with-sentinel:
// downstream filters pattern-match on it rather than re-deriving "is this a
// sentinel" checks.
type Marketability int

const (
	MarketableUnknown Marketability = iota
	MarketableYes
	MarketableNo
)

// Entry is the cached order book summary for one listing. All prices are
// cents; -1 means unknown/failed.
type Entry struct {
	Bid        int           `json:"bid"`
	BidVolume  int           `json:"bid_volume"`
	Ask        int           `json:"ask"`
	AskVolume  int           `json:"ask_volume"`
	Marketable Marketability `json:"marketable"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// Failed reports whether the entry is a pure failure sentinel.
func (e Entry) Failed() bool {
	return e.Bid == -1 && e.Ask == -1 && e.BidVolume == -1 && e.AskVolume == -1
}

// Fresh reports whether the entry is within the TTL at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < TTL
}

var failedEntry = Entry{Bid: -1, BidVolume: -1, Ask: -1, AskVolume: -1}

// resolved is the cached outcome of a listing page scrape. The numeric item
// identifier never changes, so it is kept forever once known.
type resolved struct {
	ItemNameID int64         `json:"item_nameid"`
	Marketable Marketability `json:"marketable"`
}

// Client is the slice of the market client the repository consumes.
type Client interface {
	FetchListingPage(ctx context.Context, listingHash string, session steam.Session) (*steam.ListingPageInfo, bool, error)
	FetchOrderHistogram(ctx context.Context, itemNameID int64, session steam.Session) (*steam.Histogram, bool, error)
}

// BatchOptions shapes one DownloadBatch call.
type BatchOptions struct {
	// RetryFailures re-fetches failure sentinels even inside the TTL.
	RetryFailures bool
	// ForceRefresh ignores the TTL and re-fetches every listing in the
	// batch. Used for reference listings that must be current per run.
	ForceRefresh bool
}

// Repository caches order book entries on disk with a freshness TTL,
// flushing after every rate-limit window so partial progress survives a
// crash mid-batch.
type Repository struct {
	store       *cache.Store
	client      Client
	counter     *ratelimit.Counter
	session     steam.Session
	sessionFile string
	entriesFile string
	nameIDsFile string
	now         func() time.Time
}

func NewRepository(store *cache.Store, client Client, counter *ratelimit.Counter, session steam.Session, sessionFile string) *Repository {
	return &Repository{
		store:       store,
		client:      client,
		counter:     counter,
		session:     session,
		sessionFile: sessionFile,
		entriesFile: "order_books.json",
		nameIDsFile: "item_nameids.json",
		now:         time.Now,
	}
}

// SetNow replaces the clock (tests).
func (r *Repository) SetNow(fn func() time.Time) { r.now = fn }

func (r *Repository) loadEntries() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	if err := r.store.Load(r.entriesFile, &entries); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) loadNameIDs() (map[string]resolved, error) {
	ids := make(map[string]resolved)
	if err := r.store.Load(r.nameIDsFile, &ids); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}
	return ids, nil
}

// Get fetches the order book for one listing, consulting and updating the
// cache. Failures are recorded as sentinel entries, not returned as errors;
// only a server rate-limit response aborts.
func (r *Repository) Get(ctx context.Context, listingHash string) (Entry, error) {
	entries, err := r.loadEntries()
	if err != nil {
		return Entry{}, err
	}
	if e, ok := entries[listingHash]; ok && e.Fresh(r.now()) {
		return e, nil
	}
	ids, err := r.loadNameIDs()
	if err != nil {
		return Entry{}, err
	}
	e, err := r.fetch(ctx, listingHash, entries, ids)
	if err != nil {
		return Entry{}, err
	}
	entries[listingHash] = e
	if err := r.store.Save(r.entriesFile, entries); err != nil {
		return Entry{}, err
	}
	if err := r.store.Save(r.nameIDsFile, ids); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// DownloadBatch ensures a fresh-enough entry for every given listing,
// skipping cached entries inside the TTL (failure sentinels included,
// unless opts.RetryFailures). The cache is flushed every time the rate
// limit window completes and once at the end.
func (r *Repository) DownloadBatch(ctx context.Context, listingHashes []string, opts BatchOptions) (map[string]Entry, error) {
	entries, err := r.loadEntries()
	if err != nil {
		return nil, err
	}
	ids, err := r.loadNameIDs()
	if err != nil {
		return nil, err
	}

	sorted := append([]string(nil), listingHashes...)
	sort.Strings(sorted)

	fetched, skipped := 0, 0
	for _, hash := range sorted {
		if e, ok := entries[hash]; ok && e.Fresh(r.now()) && !opts.ForceRefresh {
			if !e.Failed() || !opts.RetryFailures {
				skipped++
				continue
			}
		}
		e, err := r.fetch(ctx, hash, entries, ids)
		if err != nil {
			// Fatal (rate limited): flush what we have before aborting so
			// the caches stay consistent.
			if saveErr := r.flush(entries, ids); saveErr != nil {
				log.Printf("[orderbook] flush on abort failed: %v", saveErr)
			}
			return nil, err
		}
		entries[hash] = e
		fetched++
	}

	if err := r.flush(entries, ids); err != nil {
		return nil, err
	}
	log.Printf("[orderbook] batch done: %d fetched, %d fresh in cache", fetched, skipped)

	out := make(map[string]Entry, len(listingHashes))
	for _, hash := range listingHashes {
		if e, ok := entries[hash]; ok {
			out[hash] = e
		}
	}
	return out, nil
}

// fetch resolves the item identifier (cached across runs) and queries the
// histogram. Every network failure degrades to the sentinel entry with the
// current timestamp; steam.ErrRateLimited is the one fatal error.
func (r *Repository) fetch(ctx context.Context, listingHash string, entries map[string]Entry, ids map[string]resolved) (Entry, error) {
	res, ok := ids[listingHash]
	if !ok {
		info, changed, err := r.client.FetchListingPage(ctx, listingHash, r.session)
		r.tickAndMaybeFlush(entries, ids)
		if changed {
			r.flushSession()
		}
		if err != nil {
			if errors.Is(err, steam.ErrRateLimited) {
				return Entry{}, err
			}
			log.Printf("[orderbook] %s: listing page failed: %v", listingHash, err)
			return r.sentinelNow(), nil
		}
		if !info.HasItemNameID {
			log.Printf("[orderbook] %s: no item identifier on listing page", listingHash)
			e := r.sentinelNow()
			e.Marketable = marketabilityOf(info)
			return e, nil
		}
		res = resolved{ItemNameID: info.ItemNameID, Marketable: marketabilityOf(info)}
		ids[listingHash] = res
	}

	h, changed, err := r.client.FetchOrderHistogram(ctx, res.ItemNameID, r.session)
	r.tickAndMaybeFlush(entries, ids)
	if changed {
		r.flushSession()
	}
	if err != nil {
		if errors.Is(err, steam.ErrRateLimited) {
			return Entry{}, err
		}
		log.Printf("[orderbook] %s: histogram failed: %v", listingHash, err)
		e := r.sentinelNow()
		e.Marketable = res.Marketable
		return e, nil
	}
	return Entry{
		Bid:        h.Bid,
		BidVolume:  h.BidVolume,
		Ask:        h.Ask,
		AskVolume:  h.AskVolume,
		Marketable: res.Marketable,
		FetchedAt:  r.now(),
	}, nil
}

func (r *Repository) sentinelNow() Entry {
	e := failedEntry
	e.FetchedAt = r.now()
	return e
}

func (r *Repository) tickAndMaybeFlush(entries map[string]Entry, ids map[string]resolved) {
	if r.counter.Tick() && entries != nil {
		if err := r.flush(entries, ids); err != nil {
			log.Printf("[orderbook] periodic flush failed: %v", err)
		}
	}
}

func (r *Repository) flush(entries map[string]Entry, ids map[string]resolved) error {
	if entries != nil {
		if err := r.store.Save(r.entriesFile, entries); err != nil {
			return err
		}
	}
	if ids != nil {
		if err := r.store.Save(r.nameIDsFile, ids); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) flushSession() {
	if err := r.session.Save(r.store, r.sessionFile); err != nil {
		log.Printf("[orderbook] session flush failed: %v", err)
	}
}

func marketabilityOf(info *steam.ListingPageInfo) Marketability {
	if !info.HasMarketable {
		return MarketableUnknown
	}
	if info.Marketable {
		return MarketableYes
	}
	return MarketableNo
}
