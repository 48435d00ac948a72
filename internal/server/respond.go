package server

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/ratewatch/internal/apperror"
)

// writeJSON encodes data as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorDetail is §6's JSON error shape: `{ detail }`.
type errorDetail struct {
	Detail string `json:"detail"`
}

// writeError maps err to its §6 HTTP status via apperror and writes
// the `{ detail }` body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperror.HTTPStatus(err), errorDetail{Detail: err.Error()})
}

// writeErrorStatus writes a `{ detail }` body at an explicit status,
// for failures (bad/missing webhook token) that apperror's taxonomy
// doesn't carry a Kind for.
func writeErrorStatus(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorDetail{Detail: detail})
}
