package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LastError string `json:"last_error,omitempty"`
}

// ErrorSource exposes the most recent load failure.
type ErrorSource interface {
	LastError() string
}

// HealthCheck handles GET /health
// Reports "degraded" while the last conversation load failed.
func HealthCheck(src ErrorSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Message: "chatsync is running"}
		if src != nil {
			if last := src.LastError(); last != "" {
				resp.Status = "degraded"
				resp.LastError = last
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Metrics handles GET /metrics for the given registry.
func Metrics(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
