package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

// manualBuyRequest describes an acquisition the exchange download cannot
// know about, e.g. coins bought elsewhere and transferred in.
type manualBuyRequest struct {
	Asset    string          `json:"asset"`
	Quote    string          `json:"quote"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Fee      decimal.Decimal `json:"fee"`
	At       string          `json:"at"` // RFC 3339
}

func (s *Server) handleManualBuyList(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buys, err := s.eventRepo.ListManualBuys(r.Context(), id)
	if err != nil {
		fmt.Printf("Error listing manual buys for account %d: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list manual buys")
		return
	}
	if buys == nil {
		buys = []models.Event{}
	}
	writeJSON(w, http.StatusOK, buys)
}

func (s *Server) handleManualBuyCreate(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.accountRepo.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch account")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	var req manualBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Asset = strings.ToUpper(strings.TrimSpace(req.Asset))
	req.Quote = strings.ToUpper(strings.TrimSpace(req.Quote))
	if req.Asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required")
		return
	}
	if req.Quote == "" {
		req.Quote = account.Fiat
	}
	if req.Quantity.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if req.Price.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	at, err := time.Parse(time.RFC3339, req.At)
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be RFC 3339, e.g. 2023-05-01T12:00:00Z")
		return
	}

	ev := models.Event{
		AccountID: id,
		Type:      models.EventSpotBuy,
		Asset:     req.Asset,
		Quote:     req.Quote,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Fee:       req.Fee,
		Timestamp: at.UTC(),
		Manual:    true,
	}
	if err := s.eventRepo.InsertManualBuy(r.Context(), &ev); err != nil {
		fmt.Printf("Error inserting manual buy for account %d: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to insert manual buy")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleManualBuyDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	execID := r.PathValue("execId")
	if execID == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	if err := s.eventRepo.DeleteManualBuy(r.Context(), id, execID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
