package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the wire format for every gateway failure:
// {"error":{"message":"...","status":403}}
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the human-readable message and the HTTP status it was
// sent with, mirrored into the body for clients that drop response metadata.
type ErrorBody struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// RespondJSON writes a JSON response with the given status code. It marshals
// first so an encoding failure cannot produce a partial body after headers
// are sent.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondError writes the shared error envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	payload, err := json.Marshal(ErrorEnvelope{Error: ErrorBody{Message: message, Status: status}})
	if err != nil {
		// Fallback to plain text if JSON encoding fails
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondRaw relays a prepared JSON body verbatim, e.g. an upstream provider
// response that must not be re-encoded.
func RespondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
