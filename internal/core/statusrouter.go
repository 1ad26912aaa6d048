package core

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusRouter builds the small operator-facing HTTP surface: health,
// per-channel counts of recorded horizon-extension attempts, and
// execution-window occupancy, plus the
// Prometheus scrape endpoint. It is deliberately not the v3 REST API the
// teacher ships — RetroVue has no playlist/recording/EPG surface to
// expose — just enough for an operator dashboard and a load balancer
// health check.
func (c *Container) StatusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/healthz", c.handleHealthz)
	r.Get("/status/horizon", c.handleStatusHorizon)
	r.Get("/status/execution-window", c.handleStatusExecWindow)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (c *Container) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type horizonStatus struct {
	ChannelID string `json:"channel_id"`
	Attempts  int    `json:"recorded_attempts"`
}

func (c *Container) handleStatusHorizon(w http.ResponseWriter, r *http.Request) {
	attempts := c.Horizon.ExtensionAttemptLog()
	counts := make(map[string]int, len(c.Config.Channels))
	for _, a := range attempts {
		counts[a.ChannelID]++
	}

	out := make([]horizonStatus, 0, len(c.Config.Channels))
	for _, ch := range c.Config.Channels {
		out = append(out, horizonStatus{ChannelID: ch, Attempts: counts[ch]})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type execWindowStatus struct {
	ChannelID     string `json:"channel_id"`
	EntryCount    int    `json:"entry_count"`
	HorizonEndUTC string `json:"horizon_end_utc,omitempty"`
	GenerationID  int64  `json:"generation_id"`
}

func (c *Container) handleStatusExecWindow(w http.ResponseWriter, r *http.Request) {
	now := c.Clock.Now()
	out := make([]execWindowStatus, 0, len(c.Config.Channels))
	for _, ch := range c.Config.Channels {
		entries, gen := c.ExecWindow.ReadWindowSnapshot(ch, now, now.Add(10*365*24*time.Hour))
		status := execWindowStatus{ChannelID: ch, EntryCount: len(entries), GenerationID: gen}
		if len(entries) > 0 {
			status.HorizonEndUTC = time.UnixMilli(entries[len(entries)-1].EndUTCMs).UTC().Format(time.RFC3339)
		}
		out = append(out, status)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
