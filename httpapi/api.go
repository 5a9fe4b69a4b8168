// Package httpapi exposes operations over HTTP: journal queries, new
// requests and workflow listings.
package httpapi

import (
	"encoding/json"
	"net/http"

	operations "github.com/goliatone/go-operations"
)

// JSONError encodes err as JSON to w. A zero statusCode is derived from
// the error code.
func JSONError(w http.ResponseWriter, err error, statusCode int) {
	jsonErr := &struct {
		Err  string `json:"error"`
		Code string `json:"code,omitempty"`
	}{Err: operations.ErrorMessage(err), Code: operations.ErrorCode(err)}
	if statusCode < 1 {
		statusCode = statusFor(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(jsonErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch operations.ErrorCode(err) {
	case operations.ErrCodeOperationNotFound:
		return http.StatusNotFound
	case operations.ErrCodeMalformedTopic,
		operations.ErrCodeInvalidPayload,
		operations.ErrCodeMissingStatus,
		operations.ErrCodeInvalidFilter:
		return http.StatusBadRequest
	case operations.ErrCodePublishFailed, operations.ErrCodeTransportClosed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
