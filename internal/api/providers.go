package api

import (
	"encoding/json"
	"net/http"

	"github.com/hoteliq/ratewatch/internal/storage"
	"github.com/hoteliq/ratewatch/pkg/providers/priceproviders"
)

type providerView struct {
	storage.ProviderConfig
	Registered bool `json:"registered"`
	InChain    bool `json:"in_chain"`
}

// handleListProviders merges stored provider configuration with what is
// actually compiled in and routed.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListProviderConfigs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	registered := map[string]bool{}
	for _, key := range priceproviders.List() {
		registered[key] = true
	}
	inChain := map[string]bool{}
	for _, p := range s.router.Providers() {
		inChain[p.Key()] = true
	}

	views := make([]providerView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, providerView{
			ProviderConfig: cfg,
			Registered:     registered[cfg.Name],
			InChain:        inChain[cfg.Name],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": views})
}

// handleUpdateProvider upserts one provider's routing configuration.
// Priority and enablement take effect on the next process start; the
// response says so instead of pretending otherwise.
func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	var cfg storage.ProviderConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.Name = r.PathValue("name")
	if _, ok := priceproviders.Get(cfg.Name); !ok {
		writeError(w, http.StatusNotFound, "no such provider "+cfg.Name)
		return
	}
	if err := s.store.UpsertProviderConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": cfg,
		"note":     "routing changes apply on next restart",
	})
}
