// Package api exposes the thin HTTP/WebSocket edge surface: catalog
// queries, watch/unwatch control, live InstrumentState snapshots, and the
// streaming WS feed. Routed with the standard library's ServeMux, the
// teacher's own style (see its root main.go's http.HandleFunc calls).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowradar/internal/broadcast"
	"flowradar/internal/contracts"
	"flowradar/internal/model"
	"flowradar/internal/registry"
)

type Server struct {
	catalog   *contracts.Catalog
	registry  *registry.Registry
	hub       *broadcast.Hub
	discovery *contracts.Discovery
	mux       *http.ServeMux
}

func NewServer(catalog *contracts.Catalog, reg *registry.Registry, hub *broadcast.Hub, discovery *contracts.Discovery) *Server {
	s := &Server{catalog: catalog, registry: reg, hub: hub, discovery: discovery, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.mux.HandleFunc("/contracts", s.handleContracts)
	s.mux.HandleFunc("/contracts/new", s.handleContractsNew)
	s.mux.HandleFunc("/contracts/search", s.handleContractsSearch)
	s.mux.HandleFunc("/watch/", s.handleWatch)
	s.mux.HandleFunc("/watching", s.handleWatching)
	s.mux.HandleFunc("/refresh", s.handleRefresh)
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortBy := contracts.SortBy(q.Get("sort"))
	if sortBy == "" {
		sortBy = contracts.SortByListing
	}
	venue := model.Venue(q.Get("venue"))

	list := s.catalog.GetAll(sortBy, venue)
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleContractsNew(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := strconv.Atoi(q.Get("days"))
	if err != nil || days <= 0 {
		days = 7
	}
	list := s.catalog.GetNewListings(days, time.Now().UnixMilli())
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleContractsSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Search(r.URL.Query().Get("q")))
}

// handleWatch serves both POST and DELETE for /watch/{venue}/{symbol}.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/watch/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error"})
		return
	}
	inst := model.Instrument{Venue: model.Venue(parts[0]), Symbol: parts[1]}

	switch r.Method {
	case http.MethodPost:
		_, already := s.registry.State(inst)
		if err := s.registry.Watch(r.Context(), inst); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error"})
			return
		}
		status := "watching"
		if already {
			status = "already_watching"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	case http.MethodDelete:
		_, was := s.registry.State(inst)
		s.registry.Unwatch(inst)
		status := "stopped"
		if !was {
			status = "not_watching"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWatching(w http.ResponseWriter, r *http.Request) {
	keys := s.registry.List()
	out := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		venue, symbol, ok := splitKey(key)
		if !ok {
			continue
		}
		st, ok := s.registry.State(model.Instrument{Venue: venue, Symbol: symbol})
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"key":         key,
			"mid_price":   st.MidPrice,
			"spread_bps":  st.SpreadBps,
			"last_update": st.LastUpdateTS,
			"last_signal": st.LastSignal,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func splitKey(key string) (model.Venue, string, bool) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return "", "", false
	}
	return model.Venue(key[:idx]), key[idx+1:], true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.discovery.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_requested"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	broadcast.Upgrade(s.hub, s, w, r)
}

// Watch, Unwatch, Watching, and ContractCount implement
// broadcast.ControlHandler, letting a connected WS client drive the same
// watch/unwatch control surface as the REST endpoints above.
func (s *Server) Watch(venue, symbol string) error {
	return s.registry.Watch(context.Background(), model.Instrument{Venue: model.Venue(venue), Symbol: symbol})
}

func (s *Server) Unwatch(venue, symbol string) {
	s.registry.Unwatch(model.Instrument{Venue: model.Venue(venue), Symbol: symbol})
}

func (s *Server) Watching() []string {
	return s.registry.List()
}

func (s *Server) ContractCount() int {
	return s.catalog.Count()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
