package api

import (
	"net/http"
	"strings"
)

// requireAgentAccess guards the private surface with the shared agent
// key. When no key is configured the private endpoints stay disabled
// rather than open.
func (h *Handler) requireAgentAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(h.agentAPIKey) == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "agent endpoints disabled"})
			return
		}

		provided := strings.TrimSpace(r.Header.Get("Authorization"))
		provided = strings.TrimPrefix(provided, "Bearer ")
		if provided == h.agentAPIKey {
			next.ServeHTTP(w, r)
			return
		}

		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}
