// Package web serves the status API, the stored insights, and the Prometheus
// metrics endpoint.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evandepol/homewatch/backoff"
	"github.com/evandepol/homewatch/config"
	"github.com/evandepol/homewatch/insights"
	"github.com/evandepol/homewatch/ledger"
	"github.com/evandepol/homewatch/monitor"
	"github.com/evandepol/homewatch/telemetry"
)

const statusPage = `<!DOCTYPE html>
<html>
<head><title>homewatch</title></head>
<body>
<h1>homewatch</h1>
<ul>
<li><a href="/api/status">status</a></li>
<li><a href="/api/insights">recent insights</a></li>
<li><a href="/metrics">metrics</a></li>
<li><a href="/health">health</a></li>
</ul>
</body>
</html>
`

// Status is the /api/status payload.
type Status struct {
	Mode          config.Mode         `json:"mode"`
	Model         string              `json:"model"`
	Cycle         int64               `json:"cycle"`
	BufferSize    int                 `json:"buffer_size"`
	InBackoff     bool                `json:"in_backoff"`
	BackoffRemain string              `json:"backoff_remaining,omitempty"`
	Usage         ledger.Summary      `json:"usage"`
	InsightStats  insights.Statistics `json:"insight_stats"`
}

// Server exposes monitoring state over HTTP.
type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	mon        *monitor.Monitor
	costs      *ledger.Ledger
	backoff    *backoff.Controller
	store      *insights.Store
	logger     *telemetry.Logger
}

// NewServer builds the HTTP server on the configured port.
func NewServer(cfg *config.Config, mon *monitor.Monitor, costs *ledger.Ledger, controller *backoff.Controller, store *insights.Store, logger *telemetry.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		mon:     mon,
		costs:   costs,
		backoff: controller,
		store:   store,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/insights", s.handleInsights)
	mux.HandleFunc("/api/insights/ack", s.handleAcknowledge)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("web server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(statusPage))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.WithContext(r.Context()).Error().Err(err).Msg("insight stats failed")
		http.Error(w, "insight stats unavailable", http.StatusInternalServerError)
		return
	}

	status := Status{
		Mode:         s.cfg.Mode,
		Model:        s.cfg.Model,
		Cycle:        s.mon.Cycle(),
		BufferSize:   s.mon.Buffer().Len(),
		InBackoff:    s.backoff.InBackoff(),
		Usage:        s.costs.UsageSummary(),
		InsightStats: stats,
	}
	if status.InBackoff {
		status.BackoffRemain = s.backoff.Remaining().Round(time.Second).String()
	}
	s.writeJSON(w, status)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	recent, err := s.store.Recent(50)
	if err != nil {
		s.logger.WithContext(r.Context()).Error().Err(err).Msg("insight query failed")
		http.Error(w, "insights unavailable", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, recent)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	if err := s.store.Acknowledge(id); err != nil {
		http.Error(w, "insight not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]string{"status": "acknowledged", "id": id})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response failed")
	}
}
