package common

import (
	"encoding/json"
	"net/http"
)

// Envelope wraps every API body. Exactly one of Data and Error is set.
type Envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code, a cashier-facing message and optional details
// such as the rejected limit or the open amount.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Data writes v as the data member of the envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, Envelope{Data: v})
}

// JSONError writes the error member of the envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}
