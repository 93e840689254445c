package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// AppID of the community item marketplace all listings in this system live
// under.
const AppID = 753

// SackOfGemsListingHash is the reference listing that prices the crafting
// currency. One sack converts into GemsPerSack gems.
const (
	SackOfGemsListingHash = "753-Sack of Gems"
	GemsPerSack           = 1000
)

// ErrRateLimited means the market answered 429. Continuing would risk an
// extended block, so callers must abort the run.
var ErrRateLimited = errors.New("steam: rate limit exceeded")

// ErrNoSession means an operation that requires an authenticated session was
// attempted without one.
var ErrNoSession = errors.New("steam: authenticated session required")

// Client talks to the community market endpoints.
type Client struct {
	http     *resty.Client
	baseURL  string
	currency int
	country  string
}

func NewClient(userAgent string) *Client {
	c := resty.New()
	c.SetTimeout(10 * time.Second)
	c.SetHeader("User-Agent", userAgent)
	return &Client{
		http:     c,
		baseURL:  "https://steamcommunity.com",
		currency: 3, // EUR
		country:  "FR",
	}
}

// SetBaseURL points the client at a different host (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SearchQuery selects one tag/rarity partition of the catalog.
type SearchQuery struct {
	TagClass  string // e.g. "tag_item_class_5" for booster packs
	RarityTag string // e.g. "tag_cardborder_0", empty for none
}

// SearchListing is one row of a search/render page.
type SearchListing struct {
	Name          string `json:"name"`
	HashName      string `json:"hash_name"`
	SellListings  int    `json:"sell_listings"`
	SellPrice     int    `json:"sell_price"`
	SellPriceText string `json:"sell_price_text"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Success    bool            `json:"success"`
	Start      int             `json:"start"`
	TotalCount int             `json:"total_count"`
	Results    []SearchListing `json:"results"`
}

// PageSize is the fixed search page size. Pages are sorted by item name
// ascending so that concurrent market activity cannot skip or duplicate
// entries across offsets; the endpoint has no cursor.
const PageSize = 100

// FetchSearchPage retrieves one page of the catalog partition, starting at
// the given offset.
func (c *Client) FetchSearchPage(ctx context.Context, query SearchQuery, start int, session Session) (*SearchPage, bool, error) {
	params := url.Values{}
	params.Set("appid", strconv.Itoa(AppID))
	params.Set("norender", "1")
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(PageSize))
	params.Set("sort_column", "name")
	params.Set("sort_dir", "asc")
	if query.TagClass != "" {
		params.Set("category_753_item_class[]", query.TagClass)
	}
	if query.RarityTag != "" {
		params.Set("category_753_cardborder[]", query.RarityTag)
	}

	resp, err := c.get(ctx, "/market/search/render/", params, session)
	if err != nil {
		return nil, false, err
	}
	changed := session.Absorb(resp.Cookies())
	if err := checkStatus(resp); err != nil {
		return nil, changed, err
	}

	var page SearchPage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, changed, fmt.Errorf("decode search page at %d: %w", start, err)
	}
	if !page.Success {
		return nil, changed, fmt.Errorf("search page at %d reported failure", start)
	}
	return &page, changed, nil
}

// Histogram is the order book summary for one item.
type Histogram struct {
	Bid       int
	BidVolume int
	Ask       int
	AskVolume int
}

type histogramResponse struct {
	Success         int               `json:"success"`
	HighestBuyOrder string            `json:"highest_buy_order"`
	LowestSellOrder string            `json:"lowest_sell_order"`
	BuyOrderGraph   [][]json.Number   `json:"buy_order_graph"`
	SellOrderGraph  [][]json.Number   `json:"sell_order_graph"`
}

// FetchOrderHistogram retrieves best bid/ask and their volumes for one item
// identifier (resolved separately from the listing page).
func (c *Client) FetchOrderHistogram(ctx context.Context, itemNameID int64, session Session) (*Histogram, bool, error) {
	params := url.Values{}
	params.Set("country", c.country)
	params.Set("language", "english")
	params.Set("currency", strconv.Itoa(c.currency))
	params.Set("item_nameid", strconv.FormatInt(itemNameID, 10))
	params.Set("two_factor", "0")

	resp, err := c.get(ctx, "/market/itemordershistogram", params, session)
	if err != nil {
		return nil, false, err
	}
	changed := session.Absorb(resp.Cookies())
	if err := checkStatus(resp); err != nil {
		return nil, changed, err
	}

	var raw histogramResponse
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, changed, fmt.Errorf("decode histogram for %d: %w", itemNameID, err)
	}
	if raw.Success != 1 {
		return nil, changed, fmt.Errorf("histogram for %d reported failure", itemNameID)
	}

	h := &Histogram{
		Bid:       parseCents(raw.HighestBuyOrder),
		Ask:       parseCents(raw.LowestSellOrder),
		BidVolume: graphVolume(raw.BuyOrderGraph),
		AskVolume: graphVolume(raw.SellOrderGraph),
	}
	return h, changed, nil
}

var (
	itemNameIDPattern = regexp.MustCompile(`Market_LoadOrderSpread\(\s*(\d+)\s*\)`)
	marketablePattern = regexp.MustCompile(`"marketable":\s*(\d)`)
)

// ListingPageInfo is what the listing detail page scrape yields.
type ListingPageInfo struct {
	ItemNameID    int64
	HasItemNameID bool
	Marketable    bool
	HasMarketable bool
}

// FetchListingPage scrapes a listing detail page for the numeric item
// identifier the histogram endpoint needs, plus the marketable flag embedded
// in the same script block. A page missing either field degrades that field
// to unknown rather than failing the call.
func (c *Client) FetchListingPage(ctx context.Context, listingHash string, session Session) (*ListingPageInfo, bool, error) {
	// The detail page URL carries the full listing hash, game prefix
	// included: /market/listings/753/290970-1849 Booster Pack.
	path := "/market/listings/" + strconv.Itoa(AppID) + "/" + url.PathEscape(listingHash)
	resp, err := c.get(ctx, path, nil, session)
	if err != nil {
		return nil, false, err
	}
	changed := session.Absorb(resp.Cookies())
	if err := checkStatus(resp); err != nil {
		return nil, changed, err
	}

	info := &ListingPageInfo{}
	body := resp.Body()
	if m := itemNameIDPattern.FindSubmatch(body); m != nil {
		id, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err == nil {
			info.ItemNameID = id
			info.HasItemNameID = true
		}
	}
	if m := marketablePattern.FindSubmatch(body); m != nil {
		info.Marketable = string(m[1]) == "1"
		info.HasMarketable = true
	}
	return info, changed, nil
}

// CraftBooster spends gems to create one booster pack for the given game.
// This is the only write operation; it refuses without an authenticated
// session before touching the network.
func (c *Client) CraftBooster(ctx context.Context, gameID string, session Session) error {
	if !session.Authenticated() {
		return ErrNoSession
	}
	req := c.http.R().SetContext(ctx)
	for name, value := range session {
		req.SetCookie(&http.Cookie{Name: name, Value: value})
	}
	req.SetFormData(map[string]string{
		"sessionid":              session["sessionid"],
		"appid":                  gameID,
		"series":                 "1",
		"tradability_preference": "2",
	})
	resp, err := req.Post(c.baseURL + "/tradingcards/ajaxcreatebooster/")
	if err != nil {
		return fmt.Errorf("craft booster %s: %w", gameID, err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("craft booster %s: %w", gameID, err)
	}
	var body struct {
		Purchased json.RawMessage `json:"purchase_result"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("craft booster %s: decode response: %w", gameID, err)
	}
	if len(body.Purchased) == 0 {
		return fmt.Errorf("craft booster %s: no purchase result", gameID)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, session Session) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	for name, value := range session {
		req.SetCookie(&http.Cookie{Name: name, Value: value})
	}
	resp, err := req.Get(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return resp, nil
}

func checkStatus(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return nil
}

// parseCents converts a cent amount serialized as a string, -1 when absent
// or malformed.
func parseCents(s string) int {
	if s == "" {
		return -1
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return v
}

// graphVolume reads the cumulative volume of the first (best) price level.
func graphVolume(graph [][]json.Number) int {
	if len(graph) == 0 || len(graph[0]) < 2 {
		return -1
	}
	v, err := graph[0][1].Int64()
	if err != nil {
		return -1
	}
	return int(v)
}
