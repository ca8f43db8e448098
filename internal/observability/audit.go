package observability

import (
	"log/slog"
	"net/http"
)

// Audit emits a structured audit event for a request. Auth failures are
// logged here with full detail even though the caller only ever sees an
// opaque error.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", r.RemoteAddr,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
