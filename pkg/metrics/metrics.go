package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shahbazsiddiqui147/todaydecode/pkg/httpx"
)

// Registry accumulates in-process counters: per-endpoint request stats,
// gate decision totals keyed by outcome and reason, and point-in-time
// gauges (published article count, average risk score).
type Registry struct {
	mu       sync.RWMutex
	endpoint map[string]*EndpointStat
	decision map[string]int64
	gauges   map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt string                  `json:"generated_at"`
	Endpoints   map[string]EndpointStat `json:"endpoints"`
	Decisions   map[string]int64        `json:"gate_decisions"`
	Gauges      map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint: map[string]*EndpointStat{},
		decision: map[string]int64{},
		gauges:   map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
	stat.LastStatusCode = status
}

// IncDecision counts one gate evaluation under "outcome|reason".
func (r *Registry) IncDecision(outcome, reason string) {
	if outcome == "" {
		return
	}
	if reason == "" {
		reason = "UNKNOWN"
	}
	r.mu.Lock()
	r.decision[outcome+"|"+reason]++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Endpoints:   make(map[string]EndpointStat, len(r.endpoint)),
		Decisions:   make(map[string]int64, len(r.decision)),
		Gauges:      make(map[string]float64, len(r.gauges)),
	}
	keys := make([]string, 0, len(r.endpoint))
	for k := range r.endpoint {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		snap.Endpoints[k] = *r.endpoint[k]
	}
	for k, v := range r.decision {
		snap.Decisions[k] = v
	}
	for k, v := range r.gauges {
		snap.Gauges[k] = v
	}
	return snap
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, r.Snapshot())
	}
}
