package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
)

// AuditEntry records who touched which clinical record and how.
type AuditEntry struct {
	UserID     int64
	Role       string
	Resource   string
	RecordID   string
	Action     string
	Method     string
	Route      string
	IPAddress  string
	RequestID  string
	StatusCode int
}

// auditedResources are the /api/<resource> prefixes that hold patient data.
var auditedResources = map[string]bool{
	"patients":     true,
	"appointments": true,
}

// Audit emits one structured "clinical_access" log line per request to a
// patient or appointment route, after the handler has run.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resource := auditResource(c.Request().URL.Path)
			if resource == "" {
				return next(c)
			}

			err := next(c)

			entry := newAuditEntry(c, resource, err)
			evt := logger.Info()
			if entry.Action == "delete" {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Int64("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("clinical_access")

			return err
		}
	}
}

func newAuditEntry(c echo.Context, resource string, err error) AuditEntry {
	req := c.Request()
	status := c.Response().Status
	if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
		status = he.Code
	}
	return AuditEntry{
		UserID:     auth.UserIDFromContext(req.Context()),
		Role:       auth.RoleFromContext(req.Context()),
		Resource:   resource,
		RecordID:   c.Param("id"),
		Action:     httpMethodToAction(req.Method),
		Method:     req.Method,
		Route:      c.Path(),
		IPAddress:  c.RealIP(),
		RequestID:  requestID(c),
		StatusCode: status,
	}
}

// auditResource returns the audited resource name for /api/<resource>/...
// paths, or "" when the path is not audited.
func auditResource(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	resource, _, _ := strings.Cut(rest, "/")
	if !auditedResources[resource] {
		return ""
	}
	return resource
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
