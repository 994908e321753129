package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ParseJSON decodes JSON from the request body into the given destination,
// limiting the body size to keep oversized payloads from the decoder.
func ParseJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	// Unknown fields are allowed on purpose: callers forward provider
	// payloads that carry fields this gateway does not model.

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// ClientIP derives the rate-limit client identifier from IP-bearing headers,
// in the order the edge populates them.
func ClientIP(r *http.Request) string {
	for _, header := range []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"} {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	return "unknown"
}
