package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hairizuan-noorazman/ui-replay/logger"
	"github.com/hairizuan-noorazman/ui-replay/session"
)

// SessionLister exposes the live sessions of the service.
type SessionLister interface {
	List() []session.Info
	Get(key session.Key) (*session.Session, error)
}

// SessionHandler serves live session inspection.
type SessionHandler struct {
	sessions SessionLister
	logger   logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionLister, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   log,
	}
}

// List handles listing live sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List()
	respondJSON(w, http.StatusOK, NewPaginatedResponse(infos, len(infos), len(infos), 0))
}

// Get handles describing the session for {story}/{flow}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, err := h.sessions.Get(session.Key{Story: vars["story"], Flow: vars["flow"]})
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	respondJSON(w, http.StatusOK, s.Info())
}
