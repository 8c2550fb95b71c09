package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
)

// errorBody is the JSON shape of every error response. File and Findings
// are filled only for ingest pipeline failures that carry them.
type errorBody struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Findings []string `json:"findings,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(errorBody{Error: errorCode, Message: message})
}

// IngestErrorResponse writes a pipeline error, unpacking validation findings
// and the failing file name when the error carries them so batch clients get
// per-check detail rather than one flattened string.
func IngestErrorResponse(w http.ResponseWriter, statusCode int, errorCode string, err error) error {
	body := errorBody{Error: errorCode, Message: err.Error()}

	var valErr *apperrors.ValidationError
	var parseErr *apperrors.ParseError
	switch {
	case errors.As(err, &valErr):
		body.File = valErr.File
		body.Findings = valErr.FindingStrings()
	case errors.As(err, &parseErr):
		body.File = parseErr.File
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
