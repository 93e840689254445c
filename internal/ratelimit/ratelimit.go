package ratelimit

import (
	"log"
	"time"
)

// Category identifies one family of market endpoints. Each family gets its
// own self-imposed budget: the server does not advertise limits, but going
// past these empirically gets the client blocked for a long time.
type Category int

const (
	// CategorySearch covers the paginated search/render endpoint.
	CategorySearch Category = iota
	// CategoryListingPage covers individual listing detail pages (HTML).
	CategoryListingPage
	// CategoryOrderHistogram covers the order book histogram endpoint.
	CategoryOrderHistogram
)

// Limits is the advisory budget for one category.
type Limits struct {
	MaxQueries      int           // queries allowed per window
	Cooldown        time.Duration // sleep once the window is exhausted
	RequestCooldown time.Duration // optional sleep between every request
}

// Get returns the budget for a category. An authenticated session gets a
// larger window and a shorter cooldown than an anonymous one.
func Get(category Category, authenticated bool) Limits {
	switch category {
	case CategorySearch:
		if authenticated {
			return Limits{MaxQueries: 50, Cooldown: 70 * time.Second}
		}
		return Limits{MaxQueries: 25, Cooldown: 310 * time.Second}
	case CategoryListingPage, CategoryOrderHistogram:
		if authenticated {
			return Limits{MaxQueries: 25, Cooldown: 70 * time.Second, RequestCooldown: 300 * time.Millisecond}
		}
		return Limits{MaxQueries: 8, Cooldown: 310 * time.Second, RequestCooldown: time.Second}
	}
	// Unknown categories fall back to the anonymous listing budget.
	return Limits{MaxQueries: 8, Cooldown: 310 * time.Second, RequestCooldown: time.Second}
}

// Counter enforces one category budget for a single caller. Not safe for
// concurrent use; callers fanning out over items must share one Counter
// behind their own mutex so the window stays accurate.
type Counter struct {
	limits Limits
	count  int
	sleep  func(time.Duration)
}

func NewCounter(limits Limits) *Counter {
	return &Counter{limits: limits, sleep: time.Sleep}
}

// SetSleep replaces the sleep function (tests).
func (c *Counter) SetSleep(fn func(time.Duration)) { c.sleep = fn }

// Tick records one outgoing request. It sleeps the inter-request cooldown
// every call, and the full cooldown when the window is exhausted. It returns
// true when a window just completed, which is the caller's signal to flush
// partial progress to disk before the long sleep.
func (c *Counter) Tick() bool {
	if c.limits.RequestCooldown > 0 {
		c.sleep(c.limits.RequestCooldown)
	}
	c.count++
	if c.count < c.limits.MaxQueries {
		return false
	}
	log.Printf("[ratelimit] window of %d queries exhausted, cooling down %v", c.limits.MaxQueries, c.limits.Cooldown)
	c.sleep(c.limits.Cooldown)
	c.count = 0
	return true
}

// Count returns the queries used in the current window.
func (c *Counter) Count() int { return c.count }
