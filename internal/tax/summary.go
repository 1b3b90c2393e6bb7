package tax

import (
	"sort"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// Summarize folds a run's ledger into per-year reports keyed by the UTC
// calendar year of the disposal. Unresolved rows never enter the totals;
// they are counted so callers can report how many rows lack a valuation.
func Summarize(res *Result, accountID int64, fiat string) map[int]*models.YearlyReport {
	reports := make(map[int]*models.YearlyReport)

	yearOf := func(y int) *models.YearlyReport {
		r, okYear := reports[y]
		if !okYear {
			r = &models.YearlyReport{
				Year:      y,
				AccountID: accountID,
				Fiat:      fiat,
				ByAsset:   make(map[string]*models.AssetYear),
			}
			reports[y] = r
		}
		return r
	}

	for _, row := range res.Rows {
		r := yearOf(row.DisposedAt.UTC().Year())
		a, okAsset := r.ByAsset[row.Asset]
		if !okAsset {
			a = &models.AssetYear{Asset: row.Asset}
			r.ByAsset[row.Asset] = a
		}
		a.Disposed = a.Disposed.Add(row.Quantity)

		if row.Unresolved {
			r.Unresolved++
			a.Unresolved++
			continue
		}
		if row.Taxable {
			r.TaxableGain = r.TaxableGain.Add(row.Gain)
			a.TaxableGain = a.TaxableGain.Add(row.Gain)
		} else {
			r.ExemptGain = r.ExemptGain.Add(row.Gain)
			a.ExemptGain = a.ExemptGain.Add(row.Gain)
		}
	}

	for _, fee := range res.Fees {
		r := yearOf(fee.At.UTC().Year())
		r.FeeTotal = r.FeeTotal.Add(fee.Amount)
	}

	return reports
}

// Years returns the report years in ascending order.
func Years(reports map[int]*models.YearlyReport) []int {
	years := make([]int, 0, len(reports))
	for y := range reports {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
