package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func clientIp(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); len(ip) > 0 {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); len(ip) > 0 {
		return ip
	}
	if len(r.RemoteAddr) > 0 {
		return r.RemoteAddr
	}
	return "Unknown"
}

// auditAction names the operation a route performs, e.g. submission.approve or
// circular.update, from the matched chi route pattern.
func auditAction(method, pattern string) string {
	resource := "request"
	switch {
	case strings.Contains(pattern, "/pending"):
		resource = "submission"
	case strings.Contains(pattern, "/circulars"):
		resource = "circular"
	case strings.Contains(pattern, "/auth"):
		resource = "account"
	}

	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	last := segments[len(segments)-1]
	if last != "" && !strings.HasPrefix(last, "{") && last != "pending" && last != "circulars" && last != "*" {
		return resource + "." + last
	}

	switch method {
	case http.MethodGet:
		if strings.HasPrefix(last, "{") {
			return resource + ".view"
		}
		return resource + ".list"
	case http.MethodPost:
		return resource + ".create"
	case http.MethodPut:
		return resource + ".update"
	case http.MethodDelete:
		return resource + ".delete"
	}
	return resource + "." + strings.ToLower(method)
}

func auditOutcome(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "denied"
	case status >= 500:
		return "error"
	case status >= 400:
		return "refused"
	}
	return "success"
}

func auditTargets(r *http.Request) []interface{} {
	targets := make([]interface{}, 0)

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return targets
	}

	for i, key := range rctx.URLParams.Keys {
		if key == "submission_id" || key == "circular_id" {
			targets = append(targets, slog.String(key, rctx.URLParams.Values[i]))
		}
	}
	return targets
}

// AuditLogger records what each authenticated user did: one json line per request with the
// action, the submission or circular it touched, and how it ended.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, nil))
	return AuditLogger{logger: logger}
}

func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}

		args := []interface{}{
			"action", auditAction(r.Method, pattern),
			"outcome", auditOutcome(status),
			"status", status,
			"user_id", user.Id,
			"email", user.Email,
			"role", user.Role(),
			"client_ip", clientIp(r),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		args = append(args, auditTargets(r)...)

		log.logger.Info("audit", args...)
	}
	return http.HandlerFunc(handler)
}
