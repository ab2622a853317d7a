package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/featgraph/featgraph/pkg/model"
)

// errorBody is the JSON envelope for failures.
type errorBody struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError maps domain errors onto HTTP statuses: missing entities are
// 404, name conflicts 409, blocked deletes 412, malformed or dangling
// definitions 400, denials 403. Anything else is a 500 with a generic body.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	detail := err.Error()
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrHasDependents):
		status = http.StatusPreconditionFailed
	case errors.Is(err, model.ErrDangling), errors.Is(err, model.ErrInvalid), errors.Is(err, model.ErrCycle):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrDenied):
		status = http.StatusForbidden
	default:
		logger.Error("request failed", "error", err)
		detail = "internal error"
	}
	respondJSON(w, status, errorBody{Detail: detail})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(model.ErrInvalid, err)
	}
	return nil
}
