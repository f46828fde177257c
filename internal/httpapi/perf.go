package httpapi

import (
	"net/http"

	"github.com/autocrm/dealervoice/internal/observability"
)

// perfLatencyResponse is the payload behind the console's latency panel:
// the rolling per-turn stage timings plus how many calls are live right
// now, so a spike can be read against the load that produced it.
type perfLatencyResponse struct {
	observability.TurnStageSnapshot
	ActiveCalls int `json:"active_calls"`
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, perfLatencyResponse{
		TurnStageSnapshot: s.metrics.SnapshotTurnStages(),
		ActiveCalls:       s.calls.ActiveCount(),
	})
}
