package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/photo-people/internal/apperr"
	"github.com/kozaktomas/photo-people/internal/constants"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorResponse is the body of a classified error. Only the kind and the
// identifying keys leave the process.
type errorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind"`
	Keys  []string `json:"keys,omitempty"`
}

// statusForKind maps the error taxonomy onto HTTP status codes.
func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidArgument:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	case apperr.PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError writes err using its taxonomy kind. Internal errors are
// logged and replaced by a generic message.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	resp := errorResponse{Error: kind.String(), Kind: kind.String()}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Keys = ae.Keys
		if ae.Msg != "" && kind != apperr.Internal {
			resp.Error = ae.Msg
		}
	}
	if kind == apperr.Internal {
		slog.Error("request failed", "method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, statusForKind(kind), resp)
}

// decodeJSON reads a size-limited JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
