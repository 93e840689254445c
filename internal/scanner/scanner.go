package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"booster-trader/internal/arbitrage"
	"booster-trader/internal/cache"
	"booster-trader/internal/config"
	"booster-trader/internal/cooldown"
	"booster-trader/internal/droprate"
	"booster-trader/internal/fees"
	"booster-trader/internal/listings"
	"booster-trader/internal/models"
	"booster-trader/internal/orderbook"
	"booster-trader/internal/ratelimit"
	"booster-trader/internal/report"
	"booster-trader/internal/services/steam"

	"gorm.io/gorm"
)

// 扫描流水线用到的缓存文件名
const (
	listingsFile  = "listings.json"
	cooldownsFile = "cooldowns.json"
)

// boosterPackQuery selects the booster pack partition of the market search.
var boosterPackQuery = steam.SearchQuery{TagClass: "tag_item_class_5"}

// Progress is one step of a running scan, pushed to whoever is watching.
type Progress struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Options are the per-run knobs. Everything else comes from config.
type Options struct {
	GemPriceOverrideCents int
	GemPriceFloorCents    int
	AskPreCheck           bool
	OnlyCrafted           bool
	RetryFailures         bool
	RefreshListings       bool // update the cached catalog instead of reusing it

	// Craft triggers crafting of the profitable findings after the scan.
	// Simulate makes crafting a dry run that only logs what it would do.
	Craft    bool
	Simulate bool
}

// Summary is the outcome of one scan run.
type Summary struct {
	Result     *arbitrage.Result  `json:"result"`
	GemPrice   arbitrage.GemPrice `json:"gem_price"`
	Candidates int                `json:"candidates"`
	ItemIDs    []string           `json:"item_ids"` // booster pack ids of the profitable findings
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Scanner assembles the full pipeline: craft options, listing catalog, gem
// price, order books, engine. One Scanner is safe for sequential runs; the
// API layer serializes concurrent starts.
type Scanner struct {
	cfg      *config.Config
	db       *gorm.DB // nil disables run history
	store    *cache.Store
	client   *steam.Client
	progress func(Progress)
}

func New(cfg *config.Config, db *gorm.DB) (*Scanner, error) {
	store, err := cache.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	return &Scanner{
		cfg:      cfg,
		db:       db,
		store:    store,
		client:   steam.NewClient(cfg.UserAgent),
		progress: func(Progress) {},
	}, nil
}

// SetProgress installs a progress sink. Must be called before Run.
func (s *Scanner) SetProgress(fn func(Progress)) {
	if fn != nil {
		s.progress = fn
	}
}

func (s *Scanner) report(stage, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[scanner] %s: %s", stage, msg)
	s.progress(Progress{Stage: stage, Message: msg})
}

// Run executes one full scan and writes the ASF and xlsx artifacts into the
// data directory. Failed runs still land in the history, marked as such.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Summary, error) {
	started := time.Now()
	sum, err := s.run(ctx, opts, started)
	s.recordRun(started, sum, err, opts)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *Scanner) run(ctx context.Context, opts Options, started time.Time) (*Summary, error) {
	session, err := steam.LoadSession(s.store, s.cfg.CookieFile)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	auth := s.cfg.Authenticated || session.Authenticated()
	s.report("session", "authenticated=%v", auth)

	// Real-money crafting needs a login; refuse before any network call.
	if opts.Craft && !opts.Simulate && !session.Authenticated() {
		return nil, fmt.Errorf("crafting requires an authenticated session: %w", steam.ErrNoSession)
	}

	options, err := s.loadCraftOptions()
	if err != nil {
		return nil, err
	}
	s.report("craft-options", "%d craftable items", len(options))

	tracker, err := cooldown.NewTracker(s.store, cooldownsFile)
	if err != nil {
		return nil, fmt.Errorf("load cooldowns: %w", err)
	}
	for id, opt := range options {
		if opt.NextCreationTime != "" {
			if err := tracker.SetNextCreationTime(id, opt.NextCreationTime); err != nil {
				return nil, fmt.Errorf("record cooldown for %s: %w", id, err)
			}
		}
	}

	searchCounter := ratelimit.NewCounter(ratelimit.Get(ratelimit.CategorySearch, auth))
	listingRepo := listings.NewRepository(s.store, s.client, searchCounter, session, s.cfg.CookieFile)
	var catalog map[string]listings.Listing
	if opts.RefreshListings {
		catalog, err = listingRepo.Update(ctx, boosterPackQuery, listingsFile)
	} else {
		catalog, err = listingRepo.Download(ctx, boosterPackQuery, listingsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	s.report("listings", "%d listings in catalog", len(catalog))

	bookCounter := ratelimit.NewCounter(ratelimit.Get(ratelimit.CategoryOrderHistogram, auth))
	books := orderbook.NewRepository(s.store, s.client, bookCounter, session, s.cfg.CookieFile)

	gems, err := arbitrage.DeriveGemPrice(ctx, books, opts.GemPriceOverrideCents, opts.GemPriceFloorCents)
	if err != nil {
		return nil, fmt.Errorf("gem price: %w", err)
	}
	s.report("gem-price", "%d cents per sack", gems.CentsPerSack)

	candidates := buildCandidates(options, catalog)
	engine := arbitrage.NewEngine(fees.NewCalculator(nil), tracker, books, droprate.NewEstimator(nil))
	res, err := engine.Run(ctx, candidates, arbitrage.Options{
		GemPrice:      gems,
		AskPreCheck:   opts.AskPreCheck,
		OnlyCrafted:   opts.OnlyCrafted,
		RetryFailures: opts.RetryFailures,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	s.report("engine", "%d arbitrages, %d unknown marketability, %d filtered",
		len(res.Arbitrages), len(res.UnknownMarketable), res.Filtered)

	sum := &Summary{
		Result:     res,
		GemPrice:   gems,
		Candidates: len(candidates),
		ItemIDs:    itemIDsOf(res, candidates),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	if err := s.writeArtifacts(sum); err != nil {
		return nil, err
	}
	if opts.Craft {
		s.craft(ctx, sum.ItemIDs, session, tracker, opts.Simulate)
	}
	s.report("done", "scan finished in %s", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Second))
	return sum, nil
}

// loadCraftOptions reads the raw badge page dump and parses it. The file
// lives next to the JSON caches but is raw text, so it bypasses the store.
func (s *Scanner) loadCraftOptions() (map[string]steam.CraftOption, error) {
	path := filepath.Join(s.cfg.DataDir, s.cfg.CraftOptionsFile)
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read craft options %s: %w", path, err)
	}
	options, err := steam.ParseCraftOptions(string(blob))
	if err != nil {
		return nil, fmt.Errorf("parse craft options: %w", err)
	}
	return options, nil
}

// buildCandidates joins craft options with their market listings. A booster
// pack's listing hash is "{gameID}-{gameName} Booster Pack", keyed by the
// game whose pack it is, not the community marketplace app. A missing
// listing still yields a candidate; the engine treats a zero ask as unknown.
func buildCandidates(options map[string]steam.CraftOption, catalog map[string]listings.Listing) []arbitrage.Candidate {
	out := make([]arbitrage.Candidate, 0, len(options))
	for id, opt := range options {
		hash := fmt.Sprintf("%s-%s Booster Pack", id, opt.Name)
		out = append(out, arbitrage.Candidate{
			Subject: arbitrage.Subject{
				Kind:             arbitrage.KindBoosterPack,
				ItemID:           id,
				ListingHash:      hash,
				Name:             opt.Name,
				CraftCostGems:    opt.CraftCostGems,
				NextCreationTime: opt.NextCreationTime,
			},
			Listing: catalog[hash],
		})
	}
	return out
}

// itemIDsOf maps profitable listing hashes back to their item ids, in
// ranking order, for the acquisition command file.
func itemIDsOf(res *arbitrage.Result, candidates []arbitrage.Candidate) []string {
	byHash := make(map[string]string, len(candidates))
	for _, c := range candidates {
		if c.Subject.Kind == arbitrage.KindBoosterPack {
			byHash[c.Subject.ListingHash] = c.Subject.ItemID
		}
	}
	var ids []string
	for _, a := range res.Arbitrages {
		if id, ok := byHash[a.ListingHash]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Scanner) writeArtifacts(sum *Summary) error {
	if len(sum.ItemIDs) > 0 {
		f, err := os.Create(filepath.Join(s.cfg.DataDir, s.cfg.AsfFile))
		if err != nil {
			return fmt.Errorf("create asf file: %w", err)
		}
		if err := report.WriteASF(f, sum.ItemIDs); err != nil {
			f.Close()
			return fmt.Errorf("write asf file: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if len(sum.Result.Arbitrages) > 0 {
		path := filepath.Join(s.cfg.DataDir, s.cfg.ReportXlsx)
		if err := report.ExportXlsx(path, sum.Result.Arbitrages); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
	}
	return nil
}

// craft creates one booster of each profitable finding, best first. A craft
// failure is logged and the rest of the batch continues; successes are
// recorded in the cooldown tracker so the next run skips them.
func (s *Scanner) craft(ctx context.Context, itemIDs []string, session steam.Session, tracker *cooldown.Tracker, simulate bool) {
	for _, id := range itemIDs {
		if simulate {
			s.report("craft", "simulate: would craft booster %s", id)
			continue
		}
		if err := s.client.CraftBooster(ctx, id, session); err != nil {
			log.Printf("[scanner] craft %s: %v", id, err)
			continue
		}
		if err := tracker.MarkCrafted(id, time.Now()); err != nil {
			log.Printf("[scanner] record craft %s: %v", id, err)
		}
		s.report("craft", "crafted booster %s", id)
	}
}

// newRunRecord builds the history row for a finished scan. A failed scan
// (nil summary) is recorded too, with the error and "failed" status.
func newRunRecord(started time.Time, sum *Summary, runErr error, opts Options, authenticated bool) models.ScanRun {
	run := models.ScanRun{
		StartedAt:     started,
		FinishedAt:    time.Now(),
		Status:        "completed",
		Authenticated: authenticated,
		OnlyCrafted:   opts.OnlyCrafted,
		AskPreCheck:   opts.AskPreCheck,
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
		return run
	}
	run.FinishedAt = sum.FinishedAt
	run.CandidateCount = sum.Candidates
	run.FilteredCount = sum.Result.Filtered
	run.ArbitrageCount = len(sum.Result.Arbitrages)
	run.UnknownCount = len(sum.Result.UnknownMarketable)
	run.GemPriceCents = sum.GemPrice.CentsPerSack
	for _, a := range sum.Result.Arbitrages {
		run.Records = append(run.Records, models.ArbitrageRecord{
			ListingHash:    a.ListingHash,
			Name:           a.Name,
			ProfitCents:    a.ProfitCents,
			BidCents:       a.Bid,
			AskCents:       a.Ask,
			BidVolume:      a.BidVolume,
			AskVolume:      a.AskVolume,
			CraftCostGems:  a.CraftCostGems,
			CraftCostCents: a.CraftCostCents,
			NetSellCents:   a.SellWithoutFee,
			Marketable:     a.Marketable,
		})
	}
	return run
}

// recordRun persists the run to MySQL when a database is configured.
// Recording failures are logged, never fatal: the scan result is already
// on disk.
func (s *Scanner) recordRun(started time.Time, sum *Summary, runErr error, opts Options) {
	if s.db == nil {
		return
	}
	run := newRunRecord(started, sum, runErr, opts, s.cfg.Authenticated)
	if err := s.db.Create(&run).Error; err != nil {
		log.Printf("[scanner] failed to record run: %v", err)
		return
	}
	if runErr != nil {
		return
	}
	source := "market"
	if opts.GemPriceOverrideCents > 0 {
		source = "override"
	}
	sample := models.GemPriceSample{
		CentsPerSack: sum.GemPrice.CentsPerSack,
		Source:       source,
		ObservedAt:   sum.FinishedAt,
	}
	if err := s.db.Create(&sample).Error; err != nil {
		log.Printf("[scanner] failed to record gem price sample: %v", err)
	}
}
