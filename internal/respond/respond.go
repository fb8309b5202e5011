// Package respond writes JSON responses and error envelopes.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope of every JSON error.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON encodes payload with status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes an ErrorBody.
func Error(w http.ResponseWriter, status int, message, details string) {
	JSON(w, status, ErrorBody{Error: message, Details: details})
}

// InternalError hides err from clients unless debug is set.
func InternalError(w http.ResponseWriter, err error, debug bool) {
	details := "unexpected server error"
	if debug && err != nil {
		details = err.Error()
	}
	Error(w, http.StatusInternalServerError, "Internal error", details)
}
