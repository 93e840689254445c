package report

import (
	"fmt"
	"io"
	"strings"

	"booster-trader/internal/arbitrage"
)

// Euros renders cents for display. Floats exist only here, at the boundary.
func Euros(cents int) string {
	return fmt.Sprintf("%.2f€", float64(cents)/100)
}

// Line formats one arbitrage for the ranked report.
func Line(a arbitrage.Arbitrage) string {
	return fmt.Sprintf("%s profit | %s | craft %d gems (%s) | sell net %s (gross %s) | %d buy orders",
		Euros(a.ProfitCents), a.ListingHash, a.CraftCostGems, Euros(a.CraftCostCents),
		Euros(a.SellWithoutFee), Euros(a.Bid), a.BidVolume)
}

// Write prints the ranked report: actionable arbitrages first, then the
// ones whose marketability could not be determined.
func Write(w io.Writer, res *arbitrage.Result) error {
	if len(res.Arbitrages) == 0 {
		if _, err := fmt.Fprintln(w, "No profitable arbitrage found."); err != nil {
			return err
		}
	}
	for i, a := range res.Arbitrages {
		if _, err := fmt.Fprintf(w, "%3d. %s\n", i+1, Line(a)); err != nil {
			return err
		}
	}
	if len(res.UnknownMarketable) > 0 {
		if _, err := fmt.Fprintf(w, "\nUnknown marketability (check manually before acting):\n"); err != nil {
			return err
		}
		for _, a := range res.UnknownMarketable {
			if _, err := fmt.Fprintf(w, "   ? %s\n", Line(a)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ASFChunkSize is how many item ids one batch command carries.
const ASFChunkSize = 25

// ASFCommandPrefix is repeated on every line of the acquisition file.
const ASFCommandPrefix = "!addlicense asf"

// WriteASF writes the grouped acquisition command file: item ids joined in
// fixed-size chunks, one prefixed command per line.
func WriteASF(w io.Writer, itemIDs []string) error {
	for start := 0; start < len(itemIDs); start += ASFChunkSize {
		end := start + ASFChunkSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", ASFCommandPrefix, strings.Join(itemIDs[start:end], ",")); err != nil {
			return err
		}
	}
	return nil
}
