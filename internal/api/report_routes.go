package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/report"
	"github.com/yniverz/bybit-tax-exporter/internal/tax"
)

// parseReportRange reads either ?year=2023 or ?from=/?to= (YYYY-MM-DD,
// inclusive). Empty parameters mean an unbounded range.
func parseReportRange(r *http.Request) (tax.DateRange, error) {
	q := r.URL.Query()

	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 2000 || year > 2200 {
			return tax.DateRange{}, fmt.Errorf("invalid year %q", y)
		}
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		return tax.DateRange{From: from, To: from.AddDate(1, 0, 0).Add(-time.Nanosecond)}, nil
	}

	var dr tax.DateRange
	if from := q.Get("from"); from != "" {
		if !validateDate(from) {
			return dr, fmt.Errorf("invalid from date %q, expected YYYY-MM-DD", from)
		}
		dr.From, _ = time.Parse("2006-01-02", from)
	}
	if to := q.Get("to"); to != "" {
		if !validateDate(to) {
			return dr, fmt.Errorf("invalid to date %q, expected YYYY-MM-DD", to)
		}
		t, _ := time.Parse("2006-01-02", to)
		dr.To = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		return dr, fmt.Errorf("to must not be before from")
	}
	return dr, nil
}

func (s *Server) buildReport(w http.ResponseWriter, r *http.Request) *report.Report {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	dr, err := parseReportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}

	rep, err := s.reports.Build(r.Context(), id, dr)
	if err != nil {
		var insufficient *tax.InsufficientLotsError
		var outOfOrder *tax.OutOfOrderLotError
		switch {
		case errors.Is(err, report.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.As(err, &insufficient), errors.As(err, &outOfOrder):
			// The stored history is inconsistent (e.g. a sale without a
			// matching acquisition); the caller has to add a manual buy.
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			fmt.Printf("Error building report for account %d: %v\n", id, err)
			writeError(w, http.StatusInternalServerError, "failed to build report")
		}
		return nil
	}
	return rep
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := s.buildReport(w, r)
	if rep == nil {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	rep := s.buildReport(w, r)
	if rep == nil {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", report.CSVFilename(rep)))

	if r.URL.Query().Get("kind") == "fees" {
		if err := report.WriteFeesCSV(w, rep.Fees); err != nil {
			fmt.Printf("Error writing fee CSV: %v\n", err)
		}
		return
	}
	if err := report.WriteCSV(w, rep); err != nil {
		fmt.Printf("Error writing CSV: %v\n", err)
	}
}
