// Package httpapi is the thin HTTP boundary (spec §6): gorilla/mux routes,
// problem+json error envelopes, and the handlers that translate requests
// into calls against the DPM orchestrator, the advisory pipeline, the
// supportability store, the idempotency service, the async manager, and
// the policy resolver. Domain outcomes are always HTTP 200 (spec §7); this
// package's own error paths are validation (422), conflict (409), feature
// gating (404), backend readiness (503), and unexpected (500).
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 application/problem+json body (spec §7).
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Title: title, Status: status, Detail: detail})
}

func writeValidationError(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusUnprocessableEntity, "validation_error", detail)
}

func writeConflict(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusConflict, "conflict", detail)
}

func writeNotFound(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusNotFound, "not_found", detail)
}

func writeFeatureDisabled(w http.ResponseWriter, code string) {
	writeProblem(w, http.StatusNotFound, "feature_disabled", code)
}

func writeServiceUnavailable(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusServiceUnavailable, "backend_not_ready", detail)
}

func writeInternalError(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusInternalServerError, "internal_error", detail)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
