package api

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON error envelope returned by every failing endpoint.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used in API responses.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorised"
	CodeForbidden        = "forbidden"
	CodeConflict         = "conflict"
	CodeInternalError    = "internal_error"
	CodeValidationError  = "validation_error"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeUnavailable      = "service_unavailable"
)

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, apiErr Error) {
	writeJSON(w, apiErr.Status, map[string]Error{"error": apiErr})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message})
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusBadRequest, Code: CodeValidationError, Message: message})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message})
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message})
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusConflict, Code: CodeConflict, Message: message})
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: message})
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, Error{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "internal server error"})
}
