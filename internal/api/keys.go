package api

import (
	"fmt"
	"net/http"

	"github.com/hoteliq/ratewatch/internal/keypool"
)

// handleKeyStatus reports every pool, or one when ?provider= is given.
func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	if provider := r.URL.Query().Get("provider"); provider != "" {
		pool, ok := s.pools.Get(provider)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider "+provider)
			return
		}
		writeJSON(w, http.StatusOK, pool.Status())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": s.pools.Statuses()})
}

// handleKeyRotate force-advances a pool to its next usable credential.
func (s *Server) handleKeyRotate(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.poolFromQuery(w, r)
	if !ok {
		return
	}
	cred, err := pool.Rotate()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        fmt.Sprintf("rotated %s to key #%d", pool.Provider(), cred.PoolIndex),
		"current_status": pool.Status(),
	})
}

// handleKeyReset zeroes usage counters; one pool or all of them.
func (s *Server) handleKeyReset(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")

	var pools []*keypool.Pool
	if provider == "" {
		for _, name := range s.pools.Providers() {
			if p, ok := s.pools.Get(name); ok {
				pools = append(pools, p)
			}
		}
	} else {
		p, ok := s.pools.Get(provider)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider "+provider)
			return
		}
		pools = append(pools, p)
	}

	for _, p := range pools {
		if err := p.ResetAll(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "reset "+p.Provider()+": "+err.Error())
			return
		}
	}
	if len(pools) == 1 {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        "usage counters reset for " + pools[0].Provider(),
			"current_status": pools[0].Status(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "usage counters reset for all pools",
		"pools":   s.pools.Statuses(),
	})
}

// handleKeyReload re-reads a pool's key list from its source.
func (s *Server) handleKeyReload(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.poolFromQuery(w, r)
	if !ok {
		return
	}
	total, added, err := pool.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{
		"provider":   pool.Provider(),
		"total_keys": total,
		"keys_found": total,
		"added_keys": added,
	}
	src := keypool.EnvSource{Provider: pool.Provider()}
	if debug := src.EnvDebug(); len(debug) > 0 {
		resp["env_debug"] = debug
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) poolFromQuery(w http.ResponseWriter, r *http.Request) (*keypool.Pool, bool) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeError(w, http.StatusBadRequest, "provider query parameter is required")
		return nil, false
	}
	pool, ok := s.pools.Get(provider)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider "+provider)
		return nil, false
	}
	return pool, true
}
