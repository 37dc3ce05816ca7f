package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/clubsched/sessiond/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

var errBadPath = errors.New("bad path parameter")

type responder struct {
	logger *zap.Logger
}

func (r responder) writeJSON(w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (r responder) writeError(w http.ResponseWriter, err error) {
	r.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps the service error taxonomy onto HTTP statuses: validation
// errors are 400, lookups 404, state errors 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidTemplate),
		errors.Is(err, service.ErrMissingDate),
		errors.Is(err, service.ErrMissingDates),
		errors.Is(err, errBadPath):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTemplateNotFound),
		errors.Is(err, service.ErrInstanceNotFound),
		errors.Is(err, service.ErrTimeslotNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTemplateInactive),
		errors.Is(err, service.ErrStatusNotJoinable),
		errors.Is(err, service.ErrTimeslotFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
