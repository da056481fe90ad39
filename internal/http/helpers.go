package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/core"
	"tally/internal/services"
)

// errBadRequest marks request decoding problems, as opposed to domain
// validation failures.
var errBadRequest = errors.New("malformed request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP statuses: decoding problems
// are 400, domain validation 422, unknown references 404, everything else
// (store failures included) 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrIncompatibleGranularity),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrCategoryKindMismatch),
		errors.Is(err, services.ErrNoCategorySelection),
		errors.Is(err, services.ErrInvalidInvestMode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, services.ErrUnknownAsset):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ownerID extracts the calling user from the X-User-ID header. The transport
// authenticates; the core only ever sees the resulting owner string.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get("X-User-ID")
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing X-User-ID header"})
		return "", false
	}
	return owner, true
}
