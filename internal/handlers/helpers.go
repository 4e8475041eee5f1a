package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/craftbid/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeEngineError maps engine outcomes to stable error codes so calling
// surfaces can show an accurate message ("lead already taken" vs "insufficient
// credit"). Business conflicts are expected results, logged at most at debug.
func writeEngineError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
	case errors.Is(err, services.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, services.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "not_authorized"})
	case errors.Is(err, services.ErrInsufficientFunds):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error(), Code: "insufficient_funds"})
	case errors.Is(err, services.ErrUnknownAccount):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "unknown_account"})
	case errors.Is(err, services.ErrReferenceConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "reference_conflict"})
	case errors.Is(err, services.ErrLeadNotOpen):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "lead_not_open"})
	case errors.Is(err, services.ErrNotPending):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "not_pending"})
	case errors.Is(err, services.ErrDuplicateInterest):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "duplicate_interest"})
	case errors.Is(err, services.ErrTerminalState):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "terminal_state"})
	case errors.Is(err, services.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_transition"})
	default:
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

// pathID parses the {id} path value as a UUID.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
