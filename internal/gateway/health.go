package gateway

import "net/http"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers,omitempty"`
}

// handleHealth reports liveness. Provider cooldowns are informational;
// the service keeps answering with the degraded reply.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.deps.Providers != nil {
			resp.Providers = g.deps.Providers.Status()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
