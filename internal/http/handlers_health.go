package httpx

import (
	"net/http"
)

// healthHandler answers readiness/liveness checks with the number of live workspaces.
func healthHandler(live func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		body := map[string]any{"status": "ok"}
		if live != nil {
			body["workspaces"] = live()
		}
		WriteJSON(w, http.StatusOK, body)
	}
}
