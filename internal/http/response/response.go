// Package response writes the flat JSON envelope every endpoint returns:
// {"successful": bool, "message": "...", ...extra}.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Body holds the extra top-level keys of a response.
type Body map[string]any

const (
	keySuccessful = "successful"
	keyMessage    = "message"
	keyRequestID  = "request_id"
)

// JSON writes body with successful derived from the status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, body Body) {
	out := make(Body, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out[keySuccessful] = status < http.StatusBadRequest
	write(w, r, status, out)
}

func OK(w http.ResponseWriter, r *http.Request, body Body) {
	JSON(w, r, http.StatusOK, body)
}

// Message writes a successful response that only carries a message.
func Message(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, Body{keyMessage: message})
}

// Error writes a failed response. The request id is echoed so clients can
// quote it in support requests.
func Error(w http.ResponseWriter, r *http.Request, status int, message string, extra Body) {
	out := make(Body, len(extra)+3)
	for k, v := range extra {
		out[k] = v
	}
	out[keySuccessful] = false
	out[keyMessage] = message
	if r != nil {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			out[keyRequestID] = id
		}
	}
	write(w, r, status, out)
}

func write(w http.ResponseWriter, r *http.Request, status int, body Body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && r != nil {
		slog.WarnContext(r.Context(), "response encode failed", "error", err)
	}
}
