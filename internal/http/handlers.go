package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports whether templates are loaded and every configured
// dependency answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	for _, c := range s.readiness {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	checks["sessions"] = map[string]interface{}{
		"live":   s.sessions.Store().Len(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters and gauges in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metrics := []struct {
		name, help, kind string
		value            float64
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", float64(traceMetrics.TotalRequests)},
		{"http_server_errors_total", "Responses with a 5xx status", "counter", float64(traceMetrics.ServerErrors)},
		{"http_request_duration_avg_ms", "Average request duration in milliseconds", "gauge", float64(traceMetrics.AverageResponseTime.Microseconds()) / 1000},
		{"sessions_live", "Sessions held in memory", "gauge", float64(s.sessions.Store().Len())},
		{"chart_cache_entries", "Rendered charts held in the cache", "gauge", float64(s.charts.Size())},
		{"rate_limit_hits_total", "Total rate limit hits", "counter", float64(rateLimitMetrics.TotalHits)},
		{"active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", float64(rateLimitMetrics.ClientCount)},
		{"suspicious_requests_total", "Total suspicious requests detected", "counter", float64(securityMetrics.SuspiciousRequests)},
		{"invalid_client_ip_total", "Forwarded client addresses that failed to parse", "counter", float64(securityMetrics.InvalidIPAttempts)},
		{"uptime_seconds", "Application uptime in seconds", "gauge", time.Since(s.started).Seconds()},
	}

	w.WriteHeader(http.StatusOK)
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(w, "%s %g\n\n", m.name, m.value)
	}
}
