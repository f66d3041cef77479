package respond

import (
	"encoding/json"
	"net/http"
)

// Fields are the payload members of an API envelope.
type Fields map[string]any

func JSON(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

// OK writes a successful envelope: {"ok": true, ...fields}.
func OK(w http.ResponseWriter, r *http.Request, code int, fields Fields) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["ok"] = true
	JSON(w, r, code, body)
}

// Error writes a failed envelope: {"ok": false, "error": message}.
func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, map[string]any{"ok": false, "error": message})
}
