package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yniverz/bybit-tax-exporter/internal/models"
)

type accountRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	Fiat      string `json:"fiat"`
}

func (s *Server) handleAccountList(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountRepo.List(r.Context())
	if err != nil {
		fmt.Printf("Error listing accounts: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	account, err := s.accountRepo.Create(r.Context(), &models.Account{
		Name:      req.Name,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		Fiat:      req.Fiat,
	})
	if err != nil {
		fmt.Printf("Error creating account: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.accountRepo.Get(r.Context(), id)
	if err != nil {
		fmt.Printf("Error fetching account %d: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch account")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleAccountUpdateKeys(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.APIKey == "" && req.APISecret == "" {
		writeError(w, http.StatusBadRequest, "apiKey or apiSecret is required")
		return
	}

	if err := s.accountRepo.UpdateKeys(r.Context(), id, req.APIKey, req.APISecret); err != nil {
		fmt.Printf("Error updating keys for account %d: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.accountRepo.Delete(r.Context(), id); err != nil {
		fmt.Printf("Error deleting account %d: %v\n", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
