package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/content"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/gate"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/httpx"
	"github.com/shahbazsiddiqui147/todaydecode/pkg/stream"
)

const (
	riskIndexCacheKey  = "cache:risk-index"
	dashboardCacheKey  = "cache:dashboard"
	publicCacheTTL     = 60 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// checkMaintenance exposes the gate state to the client-side fallback.
// It reports both raw flag sources, the resolved flag, and whether this
// caller holds a bypass grant.
func (s *Server) checkMaintenance(w http.ResponseWriter, r *http.Request) {
	in := s.gateInput(r)
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"maintenance_mode_env":             in.ServerFlag,
		"next_public_maintenance_mode_env": in.PublicFlag,
		"maintenance":                      gate.FlagEnabled(in.ServerFlag, in.PublicFlag),
		"bypass":                           gate.BypassPresent(in.Query, in.Cookies),
		"checked_at":                       time.Now().UTC().Format(time.RFC3339),
	})
}

// apiListArticles lists published briefings, optionally scoped to one
// region with ?region= and a ?limit=.
func (s *Server) apiListArticles(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region != "" {
		limit := queryInt(r, "limit", 20)
		articles, err := s.Content.LatestByRegion(r.Context(), region, limit)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
		return
	}
	articles, err := s.Content.ListArticles(r.Context(), content.StatusPublished)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

func (s *Server) apiFeatured(w http.ResponseWriter, r *http.Request) {
	articles, err := s.Content.Featured(r.Context(), queryInt(r, "limit", 6))
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "list failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

func (s *Server) apiArticleBySlug(w http.ResponseWriter, r *http.Request) {
	article, err := s.Content.PublishedBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err == content.ErrNotFound {
		httpx.Error(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, article)
}

// apiRegionRisk serves the per-region risk index, cached for a minute.
func (s *Server) apiRegionRisk(w http.ResponseWriter, r *http.Request) {
	if cached, err := s.Cache.Get(r.Context(), riskIndexCacheKey); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(cached))
		return
	}
	index, err := s.Content.RegionRiskIndex(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "risk index failed")
		return
	}
	payload := map[string]interface{}{
		"regions":      index,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if body, err := json.Marshal(payload); err == nil {
		_ = s.Cache.Set(r.Context(), riskIndexCacheKey, string(body), publicCacheTTL)
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// apiDashboard serves the landing-page live metrics. Conflict intensity
// derives from the published average risk score; the rest come from the
// store and the gate flag.
func (s *Server) apiDashboard(w http.ResponseWriter, r *http.Request) {
	if cached, err := s.Cache.Get(r.Context(), dashboardCacheKey); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(cached))
		return
	}
	stats, err := s.Content.Stats(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "stats failed")
		return
	}
	sv, pv := "", ""
	if s.FlagSource != nil {
		sv, pv = s.FlagSource()
	}
	payload := map[string]interface{}{
		"articles_published": stats.Published,
		"conflict_intensity": int(stats.AvgRiskScore + 0.5),
		"maintenance":        gate.FlagEnabled(sv, pv),
		"generated_at":       time.Now().UTC().Format(time.RFC3339),
	}
	if body, err := json.Marshal(payload); err == nil {
		_ = s.Cache.Set(r.Context(), dashboardCacheKey, string(body), publicCacheTTL)
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

// streamAlerts upgrades to a websocket and relays hub events: breaking
// alerts and publish notices.
func (s *Server) streamAlerts(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		httpx.Error(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	opts := &websocket.AcceptOptions{}
	if len(s.WSOriginPatterns) > 0 {
		opts.OriginPatterns = s.WSOriginPatterns
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := s.Events.Subscribe(64)
	defer s.Events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
