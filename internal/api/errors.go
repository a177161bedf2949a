package api

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the failure payload shape. Every non-2xx response
// carries exactly this body; existing clients parse the "error" key and
// nothing else, so the shape must not grow.
type errorResponse struct {
	Error string `json:"error"`
}

// Validation messages, kept verbatim from the original service so
// client-side matching keeps working.
const (
	msgInvalidChannel  = "Invalid channel number"
	msgChannelRange    = "Channel must be between 1 and 4"
	msgChannelsRange   = "Channels must be between 1 and 4"
	msgInvalidState    = "State must be 0 or 1"
	msgInvalidParams   = "Invalid parameters"
	msgEndpointUnknown = "Endpoint not found"
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

// writeError writes the {"error": message} failure payload.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

// writeDeviceError writes the response for a failed device operation.
func writeDeviceError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeInternalError writes a generic 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
