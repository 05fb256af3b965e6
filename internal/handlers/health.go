// internal/handlers/health.go
package handlers

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

func (a *API) getHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
