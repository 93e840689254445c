package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"booster-trader/internal/cooldown"
	"booster-trader/internal/droprate"
	"booster-trader/internal/fees"
	"booster-trader/internal/listings"
	"booster-trader/internal/orderbook"
	"booster-trader/internal/services/steam"
)

// OrderBookSource is the slice of the order book repository the engine
// consumes, so only survivors of the cheap filters cost queries.
type OrderBookSource interface {
	DownloadBatch(ctx context.Context, listingHashes []string, opts orderbook.BatchOptions) (map[string]orderbook.Entry, error)
}

// Candidate joins a craftable subject with its market listing snapshot.
type Candidate struct {
	Subject Subject
	Listing listings.Listing
}

// Arbitrage is one profitable opportunity, plus the underlying order book
// data copied for display.
type Arbitrage struct {
	ListingHash    string
	Name           string
	ProfitCents    int
	Bid            int
	Ask            int
	BidVolume      int
	AskVolume      int
	CraftCostGems  int
	CraftCostCents int
	SellWithoutFee int
	Marketable     bool
}

// Options shapes one engine run. All knobs are parameters, not config-file
// entries.
type Options struct {
	GemPrice      GemPrice
	AskPreCheck   bool // drop items whose own ask already rules out profit
	OnlyCrafted   bool // keep only items crafted at least once before
	RetryFailures bool // passed through to the order book batch
}

// Result separates actionable arbitrages from those whose marketability is
// unknown: unknown is treated as non-marketable for the actionable list but
// still reported.
type Result struct {
	Arbitrages        []Arbitrage
	UnknownMarketable []Arbitrage
	Filtered          int // candidates dropped before the order book stage
}

// Engine composes the fee calculator, cooldown tracker, drop-rate estimator
// and order book repository into the filter pipeline.
type Engine struct {
	fees       *fees.Calculator
	cooldowns  *cooldown.Tracker
	orderBooks OrderBookSource
	dropRates  *droprate.Estimator
	now        func() time.Time
}

func NewEngine(calc *fees.Calculator, cd *cooldown.Tracker, books OrderBookSource, rates *droprate.Estimator) *Engine {
	return &Engine{
		fees:       calc,
		cooldowns:  cd,
		orderBooks: books,
		dropRates:  rates,
		now:        time.Now,
	}
}

// SetNow replaces the clock (tests).
func (e *Engine) SetNow(fn func() time.Time) { e.now = fn }

// Run executes the pipeline over the candidates and returns profitable
// opportunities ranked by profit descending (listing hash ascending on
// ties).
func (e *Engine) Run(ctx context.Context, candidates []Candidate, opts Options) (*Result, error) {
	res := &Result{}
	now := e.now()

	var survivors []Candidate
	for _, c := range candidates {
		craftCost := opts.GemPrice.CraftCostCents(c.Subject.CraftCostGems)

		// Low-ask pre-check: when the ask itself cannot beat the craft
		// cost, the bid (never above the ask) cannot either, so the item
		// is not worth an order book query. Ask 0 means no ask observed.
		if opts.AskPreCheck && c.Listing.SellPrice > 0 &&
			c.Listing.SellPrice <= e.fees.WithFee(craftCost) {
			res.Filtered++
			continue
		}

		craftable, err := e.cooldowns.Craftable(c.Subject.Key(), now)
		if err != nil {
			log.Printf("[engine] %s: cooldown check failed: %v", c.Subject.Key(), err)
			craftable = false
		}
		if !craftable {
			res.Filtered++
			continue
		}

		if opts.OnlyCrafted && !e.cooldowns.HasEverCrafted(c.Subject.Key()) {
			res.Filtered++
			continue
		}
		survivors = append(survivors, c)
	}

	hashes := make([]string, 0, len(survivors))
	for _, c := range survivors {
		hashes = append(hashes, c.Subject.ListingHash)
	}
	books, err := e.orderBooks.DownloadBatch(ctx, hashes, orderbook.BatchOptions{RetryFailures: opts.RetryFailures})
	if err != nil {
		return nil, fmt.Errorf("order book batch: %w", err)
	}

	for _, c := range survivors {
		entry, ok := books[c.Subject.ListingHash]
		if !ok || entry.Bid < 0 {
			continue
		}
		arb, err := e.evaluate(c, entry, opts.GemPrice)
		if err != nil {
			log.Printf("[engine] %s: %v", c.Subject.ListingHash, err)
			continue
		}
		if arb == nil {
			continue
		}
		switch entry.Marketable {
		case orderbook.MarketableYes:
			res.Arbitrages = append(res.Arbitrages, *arb)
		case orderbook.MarketableUnknown:
			res.UnknownMarketable = append(res.UnknownMarketable, *arb)
		}
		// MarketableNo is dropped outright.
	}

	rank(res.Arbitrages)
	rank(res.UnknownMarketable)
	return res, nil
}

// evaluate computes the profit for one survivor, nil when not positive.
func (e *Engine) evaluate(c Candidate, entry orderbook.Entry, gems GemPrice) (*Arbitrage, error) {
	net, err := e.fees.WithoutFee(entry.Bid)
	if err != nil {
		// An untabulated low price must not be guessed around.
		if errors.Is(err, fees.ErrUnsupportedPrice) {
			return nil, fmt.Errorf("bid %d: %w", entry.Bid, err)
		}
		return nil, err
	}

	expected := net
	if c.Subject.Kind == KindCosmetic {
		// A cosmetic craft only yields the listed (common) item with the
		// pattern's probability; scale the expected proceeds accordingly.
		p := e.dropRates.CommonProbability(c.Subject.RarityPattern)
		expected = int(math.Round(p * float64(net)))
	}

	craftCost := gems.CraftCostCents(c.Subject.CraftCostGems)
	profit := expected - craftCost
	if profit <= 0 {
		return nil, nil
	}
	return &Arbitrage{
		ListingHash:    c.Subject.ListingHash,
		Name:           c.Subject.Name,
		ProfitCents:    profit,
		Bid:            entry.Bid,
		Ask:            entry.Ask,
		BidVolume:      entry.BidVolume,
		AskVolume:      entry.AskVolume,
		CraftCostGems:  c.Subject.CraftCostGems,
		CraftCostCents: craftCost,
		SellWithoutFee: net,
		Marketable:     entry.Marketable == orderbook.MarketableYes,
	}, nil
}

func rank(arbs []Arbitrage) {
	sort.Slice(arbs, func(i, j int) bool {
		if arbs[i].ProfitCents != arbs[j].ProfitCents {
			return arbs[i].ProfitCents > arbs[j].ProfitCents
		}
		return arbs[i].ListingHash < arbs[j].ListingHash
	})
}

// DeriveGemPrice computes the process-wide gem price from the reference
// sack listing's ask, applying the optional override and floor. The
// override wins outright; the floor only raises a derived price.
func DeriveGemPrice(ctx context.Context, books OrderBookSource, overrideCents, floorCents int) (GemPrice, error) {
	if overrideCents > 0 {
		return GemPrice{CentsPerSack: overrideCents}, nil
	}
	// The sack price anchors every craft cost, so it is re-fetched each
	// run regardless of the cache TTL.
	entries, err := books.DownloadBatch(ctx, []string{steam.SackOfGemsListingHash}, orderbook.BatchOptions{ForceRefresh: true})
	if err != nil {
		return GemPrice{}, fmt.Errorf("fetch gem sack order book: %w", err)
	}
	entry, ok := entries[steam.SackOfGemsListingHash]
	if !ok || entry.Ask < 0 {
		return GemPrice{}, fmt.Errorf("no ask observed for %s", steam.SackOfGemsListingHash)
	}
	cents := entry.Ask
	if cents < floorCents {
		cents = floorCents
	}
	return GemPrice{CentsPerSack: cents}, nil
}
