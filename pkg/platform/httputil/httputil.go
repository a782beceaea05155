// Package httputil centralizes JSON encoding and domain error translation for
// HTTP handlers so every endpoint produces the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "idsync/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal
// and availability failures omit the description so store details never leak
// to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := map[string]string{"error": wireCode(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Message != "" {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// DecodeJSON parses the request body into dst, rejecting unknown fields.
// Returns a coded error suitable for WriteError.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// LogError logs a handler-level failure with its request id.
func LogError(logger *slog.Logger, r *http.Request, requestID string, err error) {
	if logger == nil {
		return
	}
	logger.ErrorContext(r.Context(), "request failed",
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
}

func wireCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeInvalidInput:
		return "invalid_input"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeFailedPrecondition:
		return "failed_precondition"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}
