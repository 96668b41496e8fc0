package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/archive"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/connection"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/metrics"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/router"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/staleness"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/version"
)

type statsSource interface {
	Stats() connection.Stats
}

// newHealthHandler serves /health and the Prometheus endpoint. writer may be nil.
func newHealthHandler(c statsSource, rt router.Router, writer *archive.Writer, m *metrics.Metrics, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s := c.Stats()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]any),
		}

		conn := map[string]any{
			"state":       s.State.String(),
			"handshaking": s.Handshaking,
			"pending":     s.Pending,
			"incoming":    s.Incoming,
			"last_update": staleness.Label(time.Now(), s.LastReceived),
		}
		if !s.LastReceived.IsZero() {
			conn["last_received"] = s.LastReceived.UTC().Format(time.RFC3339)
		}
		health.Components["connection"] = conn
		if s.State != connection.StateConnected {
			health.Status = "degraded"
		}

		if rt != nil {
			health.Components["router"] = rt.Stats()
		}
		if writer != nil {
			as := writer.Stats()
			health.Components["archive"] = as
			if as.Errors > 0 && as.Flushes == 0 {
				health.Status = "unhealthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	if metricsPath != "" {
		mux.Handle(metricsPath, m.Handler())
	}

	return mux
}
