package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/wlddc/internal/display"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	AgentState    string `json:"agent_state"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Displays      int    `json:"displays"`
	Present       int    `json:"present"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	// Components maps each optional backend to "ok" or its check error.
	Components map[string]string `json:"components,omitempty"`
}

// componentCheckTimeout bounds each backend check so a hung InfluxDB
// cannot stall a liveness check.
const componentCheckTimeout = 2 * time.Second

// DisplayListResponse is the body of GET /api/v1/displays.
type DisplayListResponse struct {
	Displays []display.Display `json:"displays"`
	Count    int               `json:"count"`
}

// handleHealth reports agent, broker and backend state. Status is "ok"
// while the broker session is live and every component check passes, and
// "degraded" otherwise. The HTTP status is 200 either way so the endpoint
// doubles as a liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()
	present := 0
	for _, d := range snapshot {
		if d.Present {
			present++
		}
	}

	resp := HealthResponse{
		Status:        "degraded",
		AgentState:    "disconnected",
		Displays:      len(snapshot),
		Present:       present,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.agent != nil {
		resp.AgentState = s.agent.State().String()
		resp.MQTTConnected = s.agent.Connected()
	}
	healthy := resp.MQTTConnected
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				healthy = false
				continue
			}
			resp.Components[name] = "ok"
		}
	}
	if healthy {
		resp.Status = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListDisplays returns every known display, sorted by unique id.
func (s *Server) handleListDisplays(w http.ResponseWriter, _ *http.Request) {
	displays := s.registry.Snapshot()
	if displays == nil {
		displays = []display.Display{}
	}
	writeJSON(w, http.StatusOK, DisplayListResponse{Displays: displays, Count: len(displays)})
}

// handleGetDisplay returns one display by unique id.
func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, display.ErrDisplayNotFound) {
			writeNotFound(w, "display not found")
			return
		}
		writeInternalError(w, "failed to get display")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRefresh requests an immediate poll and returns without waiting.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "agent not running")
		return
	}
	s.agent.RequestRefresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}
