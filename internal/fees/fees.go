package fees

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedPrice is returned for a low price the empirical table does
// not cover. The caller must not substitute a guessed value.
var ErrUnsupportedPrice = errors.New("fees: price not covered by the low-price table")

// All prices are integer cents.

// lowPriceCrossover is the highest price (inclusive) served by the empirical
// table. Above it the formulaic computation matches observed behavior; below
// it the rounding the market applies diverges from any closed formula, so the
// exact pairs are hard-coded.
const lowPriceCrossover = 66

const (
	platformFeeRate = 0.05
	categoryFeeRate = 0.10
	minFeeCents     = 1
)

// lowPriceTable maps price-including-fee to price-without-fee for every
// reachable price up to the crossover. Observed empirically; do not "fix"
// individual entries without fresh observations.
var lowPriceTable = map[int]int{
	3: 1, 4: 2, 5: 3, 6: 4, 7: 5, 8: 6, 9: 7, 10: 8,
	11: 9, 12: 10, 13: 11, 14: 12, 15: 13, 16: 14, 17: 15, 18: 16,
	19: 17, 20: 18, 21: 19, 22: 19, 23: 20, 24: 21, 25: 22, 26: 23,
	27: 24, 28: 25, 29: 26, 30: 27, 31: 28, 32: 29, 33: 29, 34: 30,
	35: 31, 36: 32, 37: 33, 38: 34, 39: 35, 40: 36, 41: 37, 42: 38,
	43: 39, 44: 39, 45: 39, 46: 40, 47: 41, 48: 42, 49: 43, 50: 44,
	51: 45, 52: 46, 53: 47, 54: 48, 55: 49, 56: 49, 57: 50, 58: 51,
	59: 52, 60: 53, 61: 54, 62: 55, 63: 56, 64: 57, 65: 58, 66: 59,
}

// Calculator inverts the market's two-stage fee schedule.
type Calculator struct {
	table map[int]int
}

// NewCalculator builds a calculator with the given low-price table. Pass nil
// to use the built-in empirical table.
func NewCalculator(table map[int]int) *Calculator {
	if table == nil {
		table = lowPriceTable
	}
	return &Calculator{table: table}
}

// WithoutFee converts a price including fee into the amount the seller
// receives. Below the crossover the empirical table is authoritative; above
// it the two percentage fees are applied successively to the remaining
// price, each floored at a one cent minimum, and the result rounded.
func (c *Calculator) WithoutFee(priceCents int) (int, error) {
	if priceCents <= lowPriceCrossover {
		net, ok := c.table[priceCents]
		if !ok {
			return 0, fmt.Errorf("%w: %d cents", ErrUnsupportedPrice, priceCents)
		}
		return net, nil
	}
	remaining := float64(priceCents)
	platformFee := math.Max(minFeeCents, platformFeeRate*remaining)
	remaining -= platformFee
	categoryFee := math.Max(minFeeCents, categoryFeeRate*remaining)
	remaining -= categoryFee
	return int(math.Round(remaining)), nil
}

// WithFee is the forward direction: the price a buyer pays so the seller
// receives netCents. Used by the ask pre-check, where a conservative
// approximation is enough.
func (c *Calculator) WithFee(netCents int) int {
	platformFee := int(math.Max(minFeeCents, math.Round(platformFeeRate*float64(netCents))))
	categoryFee := int(math.Max(minFeeCents, math.Round(categoryFeeRate*float64(netCents))))
	return netCents + platformFee + categoryFee
}
