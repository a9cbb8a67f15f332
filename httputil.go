package relay

import (
	"encoding/json"
	"net/http"

	"github.com/naivary/relay/logger"
	"github.com/naivary/relay/models"
)

// statusFor maps the kind of err to the response status. Only invalid
// input and unknown objects are told apart, every other failure is
// reported as an internal server error with the kind in the body.
func statusFor(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.New(r.Context(), h.logger).Errorf("couldn't encode the response: %s", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	l := logger.New(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		l.Errorf("%s %s failed: %s", r.Method, r.URL.Path, err)
	} else {
		l.Debugf("%s %s rejected: %s", r.Method, r.URL.Path, err)
	}
	h.writeJSON(w, r, status, models.ErrorResponse{
		Error: err.Error(),
		Kind:  KindOf(err).String(),
	})
}
