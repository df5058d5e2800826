// Package api exposes the HTTP surface: scan triggering, session and price
// history reads, credential pool administration, provider configuration and
// the usual health and metrics endpoints.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoteliq/ratewatch/internal/api/swagger"
	"github.com/hoteliq/ratewatch/internal/auth"
	"github.com/hoteliq/ratewatch/internal/keypool"
	"github.com/hoteliq/ratewatch/internal/router"
	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
)

type Server struct {
	store        storage.Storage
	pools        *keypool.Manager
	router       *router.Router
	orchestrator *scan.Orchestrator
	auth         *auth.Service
}

func NewServer(store storage.Storage, pools *keypool.Manager, r *router.Router, orchestrator *scan.Orchestrator, authService *auth.Service) *Server {
	return &Server{
		store:        store,
		pools:        pools,
		router:       r,
		orchestrator: orchestrator,
		auth:         authService,
	}
}

// Routes builds the full mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleReady)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/swagger/", swagger.Handler())

	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("GET /api/keys/status", s.auth.Require(auth.ObjectKeys, auth.ActionRead, s.handleKeyStatus))
	mux.HandleFunc("POST /api/keys/rotate", s.auth.Require(auth.ObjectKeys, auth.ActionWrite, s.handleKeyRotate))
	mux.HandleFunc("POST /api/keys/reset", s.auth.Require(auth.ObjectKeys, auth.ActionWrite, s.handleKeyReset))
	mux.HandleFunc("POST /api/keys/reload", s.auth.Require(auth.ObjectKeys, auth.ActionWrite, s.handleKeyReload))

	mux.HandleFunc("GET /api/providers", s.auth.Require(auth.ObjectProviders, auth.ActionRead, s.handleListProviders))
	mux.HandleFunc("PUT /api/providers/{name}", s.auth.Require(auth.ObjectProviders, auth.ActionWrite, s.handleUpdateProvider))

	mux.HandleFunc("POST /api/scan", s.auth.Require(auth.ObjectScans, auth.ActionWrite, s.handleTriggerScan))
	mux.HandleFunc("POST /api/sessions/{id}/cancel", s.auth.Require(auth.ObjectScans, auth.ActionWrite, s.handleCancelScan))
	mux.HandleFunc("GET /api/sessions", s.auth.Require(auth.ObjectScans, auth.ActionRead, s.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", s.auth.Require(auth.ObjectScans, auth.ActionRead, s.handleGetSession))

	mux.HandleFunc("GET /api/hotels", s.auth.Require(auth.ObjectHotels, auth.ActionRead, s.handleListHotels))
	mux.HandleFunc("PUT /api/hotels/{id}", s.auth.Require(auth.ObjectHotels, auth.ActionWrite, s.handleUpsertHotel))
	mux.HandleFunc("GET /api/hotels/{id}/prices", s.auth.Require(auth.ObjectHotels, auth.ActionRead, s.handleHotelPrices))

	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unreachable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	plain, token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      plain,
		"role":       token.Role,
		"expires_at": token.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
