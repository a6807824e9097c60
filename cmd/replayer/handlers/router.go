package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes collects the handlers mounted by NewRouter. Nil handlers are
// left unmounted.
type Routes struct {
	Health    http.HandlerFunc
	Replay    http.Handler
	Metrics   http.Handler
	Reports   *ReportHandler
	Sessions  *SessionHandler
	Artifacts *ArtifactLinks
}

// NewRouter wires the service's routes.
func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()

	if rt.Health != nil {
		router.HandleFunc("/health", rt.Health).Methods(http.MethodGet)
	}
	if rt.Metrics != nil {
		router.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if rt.Replay != nil {
		api.Handle("/replay/ws", rt.Replay)
	}
	if rt.Reports != nil {
		api.HandleFunc("/reports", rt.Reports.List).Methods(http.MethodGet)
		api.HandleFunc("/reports/{id}", rt.Reports.GetByID).Methods(http.MethodGet)
		api.HandleFunc("/reports/{id}", rt.Reports.Delete).Methods(http.MethodDelete)
	}
	if rt.Sessions != nil {
		api.HandleFunc("/sessions", rt.Sessions.List).Methods(http.MethodGet)
		api.HandleFunc("/sessions/{story}/{flow}", rt.Sessions.Get).Methods(http.MethodGet)
	}
	if rt.Artifacts != nil {
		api.HandleFunc("/artifacts/{token}", rt.Artifacts.Download).Methods(http.MethodGet)
	}

	return router
}
