package handlers

import (
	"net/http"

	"wabridge/internal/bridge"
)

// StatusProvider supplies the bridge status.
type StatusProvider interface {
	Status() bridge.Status
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	bridge.Status
	Clients int `json:"clients"`
}

// StatusHandler reports session state and counters. clients may be nil
// when no websocket hub is running.
func StatusHandler(p StatusProvider, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p == nil {
			SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "bridge not running")
			return
		}
		resp := StatusResponse{Status: p.Status()}
		if clients != nil {
			resp.Clients = clients()
		}
		SendJSON(w, http.StatusOK, resp)
	}
}
