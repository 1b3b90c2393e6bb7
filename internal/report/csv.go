package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// WriteCSV exports the disposal rows in a spreadsheet-friendly layout.
// Amounts are quoted in the account's fiat.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)

	header := []string{
		"disposed_at", "asset", "type", "quantity",
		"lot_acquired_at", "holding_days",
		"proceeds", "cost_basis", "gain",
		"taxable", "approximate", "unresolved",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range rep.Rows {
		row := &rep.Rows[i]
		acquired := ""
		if !row.LotAcquiredAt.IsZero() {
			acquired = row.LotAcquiredAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			row.DisposedAt.UTC().Format(time.RFC3339),
			row.Asset,
			string(row.EventType),
			row.Quantity.String(),
			acquired,
			strconv.Itoa(row.HoldingDays),
			row.Proceeds.String(),
			row.CostBasis.String(),
			row.Gain.String(),
			strconv.FormatBool(row.Taxable),
			strconv.FormatBool(row.Approximate),
			strconv.FormatBool(row.Unresolved),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFeesCSV exports the fee entries collected during the run.
func WriteFeesCSV(w io.Writer, fees []models.FeeEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"at", "type", "amount"}); err != nil {
		return err
	}
	for i := range fees {
		f := &fees[i]
		record := []string{
			f.At.UTC().Format(time.RFC3339),
			string(f.EventType),
			f.Amount.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// CSVFilename names the download for one account and range.
func CSVFilename(rep *Report) string {
	name := fmt.Sprintf("tax-report-account-%d", rep.Account.ID)
	if rep.From != nil {
		name += "-" + rep.From.UTC().Format("2006-01-02")
	}
	if rep.To != nil {
		name += "-" + rep.To.UTC().Format("2006-01-02")
	}
	return name + ".csv"
}
