package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"booster-trader/internal/arbitrage"
)

var xlsxHeaders = []string{
	"Rank", "Listing", "Name", "Profit", "Craft cost (gems)", "Craft cost",
	"Sell net", "Bid", "Ask", "Bid volume", "Ask volume", "Marketable",
}

// ExportXlsx writes the ranked arbitrages as a workbook, one row per
// opportunity, prices in currency units.
func ExportXlsx(path string, arbs []arbitrage.Arbitrage) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for col, h := range xlsxHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, a := range arbs {
		row := []any{
			i + 1, a.ListingHash, a.Name,
			float64(a.ProfitCents) / 100,
			a.CraftCostGems,
			float64(a.CraftCostCents) / 100,
			float64(a.SellWithoutFee) / 100,
			float64(a.Bid) / 100,
			float64(a.Ask) / 100,
			a.BidVolume, a.AskVolume, a.Marketable,
		}
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
