package handlers

import (
	"net/http"
	"time"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// HealthHandler reports liveness of the bridge process. It is healthy as
// long as the process serves requests, whatever the session state.
func HealthHandler(version string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SendJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  int64(time.Since(started).Seconds()),
		})
	}
}
