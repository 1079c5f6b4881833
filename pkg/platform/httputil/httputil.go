// Package httputil centralizes JSON response writing and the mapping from
// coded domain errors to HTTP statuses.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "spendgate/pkg/domain-errors"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError maps a domain error to an HTTP response. Internal and
// invariant-violation errors omit the description so storage details never
// leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	body := map[string]string{"error": errorToken(code)}
	if code == dErrors.CodeInvalidInput || code == dErrors.CodeNotFound {
		body["error_description"] = err.Error()
	}

	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvariantViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorToken(code dErrors.Code) string {
	switch code {
	case dErrors.CodeInvalidInput:
		return "invalid_request"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeInvariantViolation:
		return "invariant_violation"
	default:
		return "internal_error"
	}
}
