package api

import (
	"errors"
	"net/http"
	"strconv"

	"fleethire/internal/domain"
)

// writeDomainError maps service errors onto HTTP statuses.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation domain.ValidationError
		capacity   domain.CapacityError
		state      domain.StateError
		cooldown   domain.CooldownError
		dependency domain.DependencyUnavailableError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error(), Field: validation.Field, Rule: validation.Rule})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &capacity):
		writeJSON(w, http.StatusConflict, errorResponse{Error: capacity.Error(), Availability: capacity.Result})
	case errors.As(err, &state):
		status := http.StatusUnprocessableEntity
		if state.Rule == domain.RuleStatus {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorResponse{Error: state.Error(), Rule: state.Rule})
	case errors.As(err, &cooldown):
		secs := cooldown.RemainingSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: cooldown.Error(), RetryAfter: secs})
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently, reload and retry")
	case errors.As(err, &dependency):
		s.logger.Warn().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("Dependency unavailable")
		writeError(w, http.StatusServiceUnavailable, dependency.Error())
	default:
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
