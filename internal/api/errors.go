package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Error represents a structured error response. LedgerCode and Kind are set
// when the error is a ledger rejection.
type Error struct {
	Status     int         `json:"status"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	LedgerCode ledger.Code `json:"ledger_code,omitempty"`
	Kind       string      `json:"kind,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRejected    = "rejected"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeLedgerError writes a ledger rejection. Not-found kinds map to 404.
func writeLedgerError(w http.ResponseWriter, err *ledger.Error) {
	status, code := http.StatusBadRequest, ErrCodeRejected
	if err.Code.Kind() == "NOT_FOUND" {
		status, code = http.StatusNotFound, ErrCodeNotFound
	}
	writeJSON(w, status, Error{
		Status:     status,
		Code:       code,
		Message:    err.Error(),
		LedgerCode: err.Code,
		Kind:       err.Code.Kind(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}
