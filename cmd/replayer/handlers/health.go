package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// SessionCounter reports how many replay sessions are live.
type SessionCounter interface {
	Len() int
}

// HealthHandler handles health check requests.
func HealthHandler(sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Sessions: sessions.Len()})
	}
}
