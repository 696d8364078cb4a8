package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayolclub/travel-auth/internal/http/middleware"
	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/service"
)

const maxMultipartMemory = 1 << 20

var errInvalidPayload = errors.New("invalid payload")

// readFields decodes a JSON object or a url-encoded/multipart form into one
// flat map. JSON numbers stay json.Number so signed values keep their text.
func readFields(r *http.Request) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		out := map[string]any{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, errInvalidPayload
		}
		return out, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, errInvalidPayload
		}
	default:
		if err := r.ParseForm(); err != nil {
			return nil, errInvalidPayload
		}
	}
	out := make(map[string]any, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

// stringField returns fields[key] as trimmed text, or "" for objects.
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func sessionMeta(r *http.Request) service.SessionMeta {
	return service.SessionMeta{UserAgent: r.UserAgent(), IP: clientIP(r)}
}

func clientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func accountIDFromRequest(r *http.Request) (uint, bool) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return 0, false
	}
	return sess.AccountID, true
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindAuth:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindExpired:
		return http.StatusGone
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindRateLimit:
		return http.StatusTooManyRequests
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error onto the envelope. Internal causes
// are logged and never shown to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) || se.Kind == service.KindInternal {
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		response.Error(w, r, http.StatusInternalServerError, "internal server error", nil)
		return
	}
	if se.Kind == service.KindRateLimit && se.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(max(int(math.Ceil(se.RetryAfter.Seconds())), 1)))
	}
	response.Error(w, r, statusForKind(se.Kind), se.Message, nil)
}

// failureReason labels a failed request for metrics and audit records.
func failureReason(err error) string {
	return string(service.KindOf(err))
}
