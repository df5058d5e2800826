package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

type triggerScanRequest struct {
	UserID      string   `json:"user_id"`
	SessionType string   `json:"session_type"`
	HotelIDs    []string `json:"hotel_ids,omitempty"`
	CheckIn     string   `json:"check_in,omitempty"`
	CheckOut    string   `json:"check_out,omitempty"`
	Adults      int      `json:"adults,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

// handleTriggerScan starts a scan session and returns it immediately with
// status pending; callers poll the session endpoint for progress.
func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	var req triggerScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	switch req.SessionType {
	case "":
		req.SessionType = storage.ScanManual
	case storage.ScanManual, storage.ScanScheduled, storage.ScanRapidPulse:
	default:
		writeError(w, http.StatusBadRequest, "unknown session_type "+req.SessionType)
		return
	}

	session, err := s.orchestrator.Start(r.Context(), scan.Request{
		UserID:      req.UserID,
		SessionType: req.SessionType,
		HotelIDs:    req.HotelIDs,
		Params: priceproviders.SearchParams{
			CheckIn:  req.CheckIn,
			CheckOut: req.CheckOut,
			Adults:   req.Adults,
			Currency: req.Currency,
		},
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.orchestrator.Cancel(id) {
		writeError(w, http.StatusNotFound, "no running session "+id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := queryInt(r, "limit", 50)

	sessions, err := s.store.ListScanSessions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession returns one session with its per-hotel outcomes and
// recorded price points.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.store.GetScanSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "no session "+id)
		return
	}

	results, err := s.store.ListHotelScanResults(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	points, err := s.store.ListSessionPricePoints(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      session,
		"results":      results,
		"price_points": points,
	})
}

func (s *Server) handleListHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := s.store.ListHotels(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotels": hotels})
}

func (s *Server) handleUpsertHotel(w http.ResponseWriter, r *http.Request) {
	var hotel storage.Hotel
	if err := json.NewDecoder(r.Body).Decode(&hotel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hotel.ID = r.PathValue("id")
	if hotel.UserID == "" || hotel.Name == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required")
		return
	}
	if err := s.store.UpsertHotel(r.Context(), hotel); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hotel)
}

func (s *Server) handleHotelPrices(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := queryInt(r, "limit", 100)

	points, err := s.store.ListHotelPricePoints(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotel_id": id, "price_points": points})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
