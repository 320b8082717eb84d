package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/shawkridge/athena-sub002/internal/circuitbreaker"
)

// HealthHandler serves liveness plus a per-source breaker snapshot.
type HealthHandler struct {
	breakers *circuitbreaker.Manager
}

func NewHealthHandler(breakers *circuitbreaker.Manager) *HealthHandler {
	return &HealthHandler{breakers: breakers}
}

// RegisterRoutes registers health routes on the provided mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/healthz/sources", h.handleSources)
}

func (h *HealthHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleSources reports circuit state per source seen so far.
func (h *HealthHandler) handleSources(w http.ResponseWriter, r *http.Request) {
	snapshot := h.breakers.Snapshot()
	out := make(map[string]map[string]interface{}, len(snapshot))
	for source, status := range snapshot {
		out[source] = map[string]interface{}{
			"state":         status.State.String(),
			"failure_count": status.FailureCount,
			"retry_in_ms":   status.RetryIn.Milliseconds(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
