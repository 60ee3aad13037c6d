package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// ERROR RESPONSES
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByKind = map[string]int{
	"invalid_date_range":         http.StatusBadRequest,
	"past_date":                  http.StatusBadRequest,
	"invalid_amount":             http.StatusBadRequest,
	"invalid_input":              http.StatusBadRequest,
	"outside_eligibility_window": http.StatusBadRequest,
	"forbidden":                  http.StatusForbidden,
	"not_found":                  http.StatusNotFound,
	"overlap_conflict":           http.StatusConflict,
	"invalid_transition":         http.StatusConflict,
	"below_used_floor":           http.StatusConflict,
	"insufficient_balance":       http.StatusConflict,
	"already_exists":             http.StatusConflict,
	"concurrency_conflict":       http.StatusServiceUnavailable,
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	if status, ok := statusByKind[generic.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError writes err as {"error", "code"}. Internal errors are logged
// and their message is not exposed.
func writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeProblem(w, http.StatusBadRequest, "validation_failed", verrs.Error())
		return
	}

	kind := generic.Kind(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
		writeProblem(w, status, kind, "internal error")
		return
	}
	writeProblem(w, status, kind, err.Error())
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}
