// Package handlers exposes the replay service over HTTP and WebSocket.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PaginatedResponse represents a standardized paginated API response.
type PaginatedResponse struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// NewPaginatedResponse creates a new paginated response.
func NewPaginatedResponse(items interface{}, total, limit, offset int) PaginatedResponse {
	return PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// parseUUIDOrRespond parses a UUID from path parameters and responds with an error if invalid.
// Returns the UUID and true if successful, or uuid.Nil and false if parsing failed (error response already sent).
func parseUUIDOrRespond(w http.ResponseWriter, r *http.Request, paramName, entityName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[paramName])
	if err != nil {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid %s ID: must be a valid UUID", entityName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads limit and offset query parameters.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}
