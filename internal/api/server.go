package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yniverz/bybit-tax-exporter/internal/report"
	"github.com/yniverz/bybit-tax-exporter/internal/repository"
	"github.com/yniverz/bybit-tax-exporter/internal/scheduler"
)

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Server struct {
	pool        *pgxpool.Pool
	accountRepo *repository.AccountRepo
	eventRepo   *repository.EventRepo
	priceRepo   *repository.PriceRepo
	reports     *report.Service
	sync        *scheduler.SyncScheduler
	httpServer  *http.Server
	apiKey      string
}

func NewServer(pool *pgxpool.Pool, reports *report.Service, sync *scheduler.SyncScheduler,
	port int, apiKey, corsOrigin string) *Server {

	s := &Server{
		pool:        pool,
		accountRepo: repository.NewAccountRepo(pool),
		eventRepo:   repository.NewEventRepo(pool),
		priceRepo:   repository.NewPriceRepo(pool),
		reports:     reports,
		sync:        sync,
		apiKey:      apiKey,
	}

	mux := http.NewServeMux()

	// Account routes
	mux.HandleFunc("GET /v1/accounts", s.handleAccountList)
	mux.HandleFunc("POST /v1/accounts", s.handleAccountCreate)
	mux.HandleFunc("GET /v1/accounts/{id}", s.handleAccountGet)
	mux.HandleFunc("PUT /v1/accounts/{id}/keys", s.handleAccountUpdateKeys)
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.handleAccountDelete)

	// Manual buy routes
	mux.HandleFunc("GET /v1/accounts/{id}/manual-buys", s.handleManualBuyList)
	mux.HandleFunc("POST /v1/accounts/{id}/manual-buys", s.handleManualBuyCreate)
	mux.HandleFunc("DELETE /v1/accounts/{id}/manual-buys/{execId}", s.handleManualBuyDelete)

	// Price routes
	mux.HandleFunc("GET /v1/prices/coverage", s.handlePriceCoverage)
	mux.HandleFunc("GET /v1/prices/{asset}", s.handlePriceSeries)

	// Report routes
	mux.HandleFunc("GET /v1/accounts/{id}/report", s.handleReport)
	mux.HandleFunc("GET /v1/accounts/{id}/report.csv", s.handleReportCSV)

	// Sync routes
	mux.HandleFunc("POST /v1/sync", s.handleSyncAll)
	mux.HandleFunc("POST /v1/accounts/{id}/sync", s.handleSyncAccount)
	mux.HandleFunc("GET /v1/sync/status", s.handleSyncStatus)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseAccountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid account id %q", r.PathValue("id"))
	}
	return id, nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
