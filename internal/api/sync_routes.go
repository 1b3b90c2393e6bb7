package api

import (
	"fmt"
	"net/http"
)

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	if err := s.sync.SyncNow(r.Context()); err != nil {
		fmt.Printf("Error during manual sync: %v\n", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	id, err := parseAccountID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sync.SyncAccountNow(r.Context(), id); err != nil {
		fmt.Printf("Error during manual sync of account %d: %v\n", id, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.sync != nil && s.sync.Running(),
	})
}
