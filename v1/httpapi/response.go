package httpapi

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope of every JSON body.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodePoolExhausted       = "POOL_EXHAUSTED"
	CodeCredentialExpired   = "CREDENTIAL_EXPIRED"
	CodeBackingStoreTimeout = "BACKING_STORE_TIMEOUT"
	CodeUnavailable         = "SERVICE_UNAVAILABLE"
	CodeCanceled            = "REQUEST_CANCELED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

func created(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Error: &ErrorInfo{Code: code, Message: message, Details: details},
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeBadRequest, message, nil)
}

func internalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred", nil)
}
