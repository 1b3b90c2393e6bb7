package api

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "unreachable"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"database":    dbStatus,
		"syncRunning": s.sync != nil && s.sync.Running(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}
