package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/inkform/inkform/libs/httpx"
	"github.com/inkform/inkform/services/studio-service/internal/intake"
	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps lifecycle errors onto HTTP: validation 400, unknown
// appointment 404, stale state 409, anything else 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var iv *intake.ValidationError
	var lv *lifecycle.ValidationError
	switch {
	case errors.As(err, &iv):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(iv.Code), Field: iv.Field})
	case errors.As(err, &lv):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(lv.Code), Field: lv.Field})
	case errors.Is(err, lifecycle.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found"})
	case errors.Is(err, lifecycle.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid_state"})
	case errors.Is(err, lifecycle.ErrDuplicateIntake):
		writeJSON(w, http.StatusConflict, errorBody{Error: "duplicate_intake"})
	default:
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}
