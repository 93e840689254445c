package arbitrage

import (
	"context"
	"testing"
	"time"

	"booster-trader/internal/cache"
	"booster-trader/internal/cooldown"
	"booster-trader/internal/droprate"
	"booster-trader/internal/fees"
	"booster-trader/internal/listings"
	"booster-trader/internal/orderbook"
	"booster-trader/internal/services/steam"
)

type fakeBooks struct {
	entries   map[string]orderbook.Entry
	batches   [][]string
	batchOpts []orderbook.BatchOptions
}

func (f *fakeBooks) DownloadBatch(_ context.Context, hashes []string, opts orderbook.BatchOptions) (map[string]orderbook.Entry, error) {
	f.batches = append(f.batches, hashes)
	f.batchOpts = append(f.batchOpts, opts)
	out := make(map[string]orderbook.Entry, len(hashes))
	for _, h := range hashes {
		if e, ok := f.entries[h]; ok {
			out[h] = e
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, books OrderBookSource) (*Engine, *cooldown.Tracker) {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tracker, err := cooldown.NewTracker(store, "next_creation_times.json")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	e := NewEngine(fees.NewCalculator(nil), tracker, books, droprate.NewEstimator(nil))
	e.SetNow(func() time.Time { return time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC) })
	return e, tracker
}

func booster(id, hash, name string, gems int, sellPrice int) Candidate {
	return Candidate{
		Subject: Subject{Kind: KindBoosterPack, ItemID: id, ListingHash: hash, Name: name, CraftCostGems: gems},
		Listing: listings.Listing{SellPrice: sellPrice},
	}
}

func marketableEntry(bid, ask int) orderbook.Entry {
	return orderbook.Entry{Bid: bid, BidVolume: 3, Ask: ask, AskVolume: 2, Marketable: orderbook.MarketableYes, FetchedAt: time.Now()}
}

func TestRun_RankingAndExclusions(t *testing.T) {
	// Gem price 1000 cents per 1000-gem sack: 1 gem = 1 cent.
	gems := GemPrice{CentsPerSack: 1000}

	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-A": marketableEntry(300, 320), // net 257, craft 107 -> +1.50
		"753-B": marketableEntry(100, 120), // net 86, craft 106 -> -0.20
		"753-C": marketableEntry(400, 420), // net 342, craft 42 -> +3.00
		"753-D": { // profitable but not marketable: excluded
			Bid: 400, BidVolume: 1, Ask: 420, AskVolume: 1, Marketable: orderbook.MarketableNo,
		},
	}}
	e, _ := newTestEngine(t, books)

	candidates := []Candidate{
		booster("1", "753-A", "A", 107, 320),
		booster("2", "753-B", "B", 106, 120),
		booster("3", "753-C", "C", 42, 420),
		booster("4", "753-D", "D", 100, 420),
	}
	res, err := e.Run(context.Background(), candidates, Options{GemPrice: gems})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Arbitrages) != 2 {
		t.Fatalf("len(arbitrages)=%d want 2: %+v", len(res.Arbitrages), res.Arbitrages)
	}
	if res.Arbitrages[0].ProfitCents != 300 || res.Arbitrages[0].ListingHash != "753-C" {
		t.Fatalf("first=%+v want 3.00 profit on 753-C", res.Arbitrages[0])
	}
	if res.Arbitrages[1].ProfitCents != 150 || res.Arbitrages[1].ListingHash != "753-A" {
		t.Fatalf("second=%+v want 1.50 profit on 753-A", res.Arbitrages[1])
	}
}

func TestRun_TieBrokenByListingHash(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-B": marketableEntry(300, 320),
		"753-A": marketableEntry(300, 320),
	}}
	e, _ := newTestEngine(t, books)
	res, err := e.Run(context.Background(), []Candidate{
		booster("1", "753-B", "B", 100, 0),
		booster("2", "753-A", "A", 100, 0),
	}, Options{GemPrice: gems})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Arbitrages) != 2 || res.Arbitrages[0].ListingHash != "753-A" {
		t.Fatalf("ties must rank by listing hash ascending: %+v", res.Arbitrages)
	}
}

func TestRun_LowAskPreCheck(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-NoAsk": marketableEntry(300, -1),
	}}
	e, _ := newTestEngine(t, books)

	candidates := []Candidate{
		// Ask 100 cannot beat a craft cost of 200: never queried.
		booster("1", "753-Cheap", "Cheap", 200, 100),
		// No ask observed: must still be queried.
		booster("2", "753-NoAsk", "NoAsk", 100, 0),
	}
	res, err := e.Run(context.Background(), candidates, Options{GemPrice: gems, AskPreCheck: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Filtered != 1 {
		t.Fatalf("Filtered=%d want 1", res.Filtered)
	}
	if len(books.batches) != 1 || len(books.batches[0]) != 1 || books.batches[0][0] != "753-NoAsk" {
		t.Fatalf("order book batch=%v want only 753-NoAsk", books.batches)
	}
}

func TestRun_CooldownFilter(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-Hot":  marketableEntry(300, 320),
		"753-Cool": marketableEntry(300, 320),
	}}
	e, tracker := newTestEngine(t, books)
	// Item 1 was crafted an hour ago: still cooling down.
	if err := tracker.MarkCrafted("1", time.Date(2024, time.June, 14, 11, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("MarkCrafted: %v", err)
	}

	res, err := e.Run(context.Background(), []Candidate{
		booster("1", "753-Hot", "Hot", 100, 0),
		booster("2", "753-Cool", "Cool", 100, 0),
	}, Options{GemPrice: gems})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Arbitrages) != 1 || res.Arbitrages[0].ListingHash != "753-Cool" {
		t.Fatalf("arbitrages=%+v want only 753-Cool", res.Arbitrages)
	}
}

func TestRun_OnlyPreviouslyCraftedFilter(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-Known": marketableEntry(300, 320),
		"753-New":   marketableEntry(300, 320),
	}}
	e, tracker := newTestEngine(t, books)
	// Crafted long ago: recorded but craftable again.
	if err := tracker.MarkCrafted("1", time.Date(2024, time.June, 1, 11, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("MarkCrafted: %v", err)
	}

	res, err := e.Run(context.Background(), []Candidate{
		booster("1", "753-Known", "Known", 100, 0),
		booster("2", "753-New", "New", 100, 0),
	}, Options{GemPrice: gems, OnlyCrafted: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Arbitrages) != 1 || res.Arbitrages[0].ListingHash != "753-Known" {
		t.Fatalf("arbitrages=%+v want only 753-Known", res.Arbitrages)
	}
}

func TestRun_UnknownMarketabilityReportedSeparately(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-U": {Bid: 300, BidVolume: 1, Ask: 320, AskVolume: 1, Marketable: orderbook.MarketableUnknown},
	}}
	e, _ := newTestEngine(t, books)
	res, err := e.Run(context.Background(), []Candidate{booster("1", "753-U", "U", 100, 0)}, Options{GemPrice: gems})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Arbitrages) != 0 {
		t.Fatalf("unknown marketability leaked into actionable output: %+v", res.Arbitrages)
	}
	if len(res.UnknownMarketable) != 1 || res.UnknownMarketable[0].ProfitCents != 157 {
		t.Fatalf("UnknownMarketable=%+v", res.UnknownMarketable)
	}
}

func TestRun_CosmeticScalesByDropRate(t *testing.T) {
	gems := GemPrice{CentsPerSack: 1000}
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		"753-Cosmetic": marketableEntry(300, 320),
	}}
	e, _ := newTestEngine(t, books)
	c := Candidate{
		Subject: Subject{
			Kind:          KindCosmetic,
			ListingHash:   "753-Cosmetic",
			Name:          "Cosmetic",
			CraftCostGems: 100,
			RarityPattern: droprate.Pattern{Common: 1, Uncommon: 1, Rare: 1}, // 0.6480
		},
	}
	res, err := e.Run(context.Background(), []Candidate{c}, Options{GemPrice: gems})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// net 257 * 0.6480 = 166.54 -> 167 expected, minus 100 craft cost.
	if len(res.Arbitrages) != 1 || res.Arbitrages[0].ProfitCents != 67 {
		t.Fatalf("arbitrages=%+v want one with 67 cents profit", res.Arbitrages)
	}
}

func TestDeriveGemPrice(t *testing.T) {
	books := &fakeBooks{entries: map[string]orderbook.Entry{
		steam.SackOfGemsListingHash: marketableEntry(40, 46),
	}}

	gp, err := DeriveGemPrice(context.Background(), books, 0, 0)
	if err != nil {
		t.Fatalf("DeriveGemPrice: %v", err)
	}
	if gp.CentsPerSack != 46 {
		t.Fatalf("CentsPerSack=%d want 46 (sack ask)", gp.CentsPerSack)
	}

	gp, err = DeriveGemPrice(context.Background(), books, 0, 60)
	if err != nil {
		t.Fatalf("DeriveGemPrice(floor): %v", err)
	}
	if gp.CentsPerSack != 60 {
		t.Fatalf("CentsPerSack=%d want floor 60", gp.CentsPerSack)
	}

	gp, err = DeriveGemPrice(context.Background(), books, 120, 60)
	if err != nil {
		t.Fatalf("DeriveGemPrice(override): %v", err)
	}
	if gp.CentsPerSack != 120 {
		t.Fatalf("CentsPerSack=%d want override 120", gp.CentsPerSack)
	}
	if len(books.batches) != 2 {
		t.Fatalf("override must not touch the order book, batches=%v", books.batches)
	}
	for i, o := range books.batchOpts {
		if !o.ForceRefresh {
			t.Fatalf("sack fetch %d must bypass the cache TTL, opts=%+v", i, o)
		}
	}
}

func TestGemPrice_CraftCostCents(t *testing.T) {
	g := GemPrice{CentsPerSack: 46}
	if got := g.CraftCostCents(1000); got != 46 {
		t.Fatalf("CraftCostCents(1000)=%d want 46", got)
	}
	if got := g.CraftCostCents(1200); got != 55 {
		t.Fatalf("CraftCostCents(1200)=%d want 55", got)
	}
}
