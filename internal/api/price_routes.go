package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

func (s *Server) handlePriceCoverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := s.priceRepo.Coverage(r.Context())
	if err != nil {
		fmt.Printf("Error fetching price coverage: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch price coverage")
		return
	}
	if coverage == nil {
		coverage = []models.PriceCoverage{}
	}
	writeJSON(w, http.StatusOK, coverage)
}

func (s *Server) handlePriceSeries(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(r.PathValue("asset"))
	fiat := strings.ToUpper(r.URL.Query().Get("fiat"))
	if fiat == "" {
		fiat = "EUR"
	}

	series, err := s.priceRepo.AssetSeries(r.Context(), asset, fiat)
	if err != nil {
		fmt.Printf("Error fetching price series %s/%s: %v\n", asset, fiat, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch price series")
		return
	}
	if series == nil {
		series = []models.PricePoint{}
	}
	writeJSON(w, http.StatusOK, series)
}
