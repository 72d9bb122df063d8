package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

// writeError maps a catalogue, session or provider error onto a status code
// and the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	var pe *provider.Error
	switch {
	case errors.As(err, &pe):
		code := http.StatusBadGateway
		switch pe.Code {
		case provider.CodeTimeout:
			code = http.StatusGatewayTimeout
		case provider.CodeUnknownBackend:
			code = http.StatusBadRequest
		}
		httpError(w, code, pe.Code, "%s", pe.Message)
	case errors.Is(err, catalogue.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, catalogue.ErrDuplicateKey):
		httpError(w, http.StatusConflict, "duplicate_key", "%v", err)
	case errors.Is(err, session.ErrAlreadyExists):
		httpError(w, http.StatusConflict, "already_exists", "%v", err)
	case errors.Is(err, session.ErrNoPendingDelete):
		httpError(w, http.StatusConflict, "no_pending_delete", "%v", err)
	case errors.Is(err, session.ErrValidation):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, session.ErrPermissionDenied):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, catalogue.ErrPersistFailed):
		httpError(w, http.StatusInternalServerError, "persist_failed", "%v", err)
	case errors.Is(err, catalogue.ErrStorageUnavailable):
		httpError(w, http.StatusServiceUnavailable, "storage_unavailable", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

// decodeBody reads a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
