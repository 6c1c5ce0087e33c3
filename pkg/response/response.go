// Package response writes the JSON envelope every API response carries:
// {"success": bool, "error": bool, "message": string, ...payload}.
package response

import (
	"encoding/json"
	"net/http"
)

const (
	MsgInternal     = "Internal server error."
	MsgUnauthorized = "Unauthorized"
	MsgValidation   = "The given data was invalid."
)

// Payload holds the resource-specific keys merged into the envelope.
type Payload map[string]any

func write(w http.ResponseWriter, status int, ok bool, message string, payload Payload) {
	body := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = ok
	body["error"] = !ok
	body["message"] = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// JSON writes a successful envelope.
func JSON(w http.ResponseWriter, status int, message string, payload Payload) {
	write(w, status, true, message, payload)
}

// Error writes a failed envelope.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, false, message, nil)
}

// ErrorWithPayload writes a failed envelope carrying extra keys (e.g. field errors).
func ErrorWithPayload(w http.ResponseWriter, status int, message string, payload Payload) {
	write(w, status, false, message, payload)
}
