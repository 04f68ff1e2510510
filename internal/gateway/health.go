package gateway

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Uptime string `json:"uptime"`
	// Active is the number of sessions with a call in flight.
	Active int    `json:"active"`
	Error  string `json:"error,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the session store answers, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Truncate(time.Second).String(),
			Active: g.lanes.size(),
		}

		code := http.StatusOK
		if g.store == nil {
			resp.Status = "degraded"
			resp.Error = "session store unavailable"
			code = http.StatusServiceUnavailable
		} else if _, err := g.store.List(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
