// Package httpx provides JSON response utilities shared by the function endpoints.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies accepted by DecodeJSON and ReadBody.
const maxBodyBytes = 1 << 20

// ErrorBody is the payload returned for failed requests.
type ErrorBody struct {
	Error   string `json:"error"`
	Success *bool  `json:"success,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an {"error": message} response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}

// ReadBody returns the raw request body, bounded to maxBodyBytes.
func ReadBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}
