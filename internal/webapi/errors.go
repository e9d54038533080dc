// ABOUTME: Error envelope rendering for the web API
// ABOUTME: Maps the auth error taxonomy to statuses, with development-mode detail

package webapi

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/persception/gateway/internal/auth"
)

// errorEnvelope is the failure response body. Detail and Stack are only
// populated in development mode.
type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"error,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindAuthentication:
		return http.StatusUnauthorized
	case auth.KindAuthorization:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError renders any error as the envelope. auth.Error carries its own
// classification; everything else is an internal error with a generic
// client message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "something went wrong"

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		status = statusFor(authErr.Kind)
		message = authErr.Msg
	}

	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path,
			"status", status, "error", err)
	}

	envelope := errorEnvelope{Message: message}
	if status >= 500 {
		envelope.Status = "error"
	} else {
		envelope.Status = "fail"
	}
	if s.development {
		envelope.Detail = err.Error()
		envelope.Stack = string(debug.Stack())
	}

	writeJSON(w, status, envelope)
}
