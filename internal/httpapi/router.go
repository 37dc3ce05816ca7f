// Package httpapi exposes the scheduling engine's operations over HTTP.
// Authentication, rate limiting and schema validation live in the gateway in
// front of this service; the engine only reads the resolved actor id.
package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/service"
)

type RouterConfig struct {
	Sessions      *service.SessionService
	Participation *service.ParticipationService
	Rosters       *service.RosterService
	Logger        *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := &Handler{
		sessions:      cfg.Sessions,
		participation: cfg.Participation,
		rosters:       cfg.Rosters,
		responder:     responder{logger: cfg.Logger},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /templates", h.createTemplate)
	mux.HandleFunc("GET /templates/{id}", h.getTemplate)
	mux.HandleFunc("POST /templates/{id}/generate", h.generateInstances)
	mux.HandleFunc("GET /templates/{id}/instances", h.listInstances)
	mux.HandleFunc("GET /clubs/{id}/templates", h.listClubTemplates)

	mux.HandleFunc("GET /instances/{id}", h.getInstance)
	mux.HandleFunc("POST /instances/{id}/cancel", h.cancelInstance)
	mux.HandleFunc("PUT /instances/{id}/timeslots", h.updateRosters)
	mux.HandleFunc("POST /instances/{id}/timeslots/{timeslotID}/join", h.join)
	mux.HandleFunc("POST /instances/{id}/timeslots/{timeslotID}/leave", h.leave)

	return withLogging(cfg.Logger, mux)
}
