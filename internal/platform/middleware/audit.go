package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// AuditEntry records one state-changing request: who changed what in which
// organization, and how it ended.
type AuditEntry struct {
	UserID         string
	Role           auth.Role
	OrganizationID uuid.UUID
	Resource       string
	ResourceID     string
	Action         string // create, update, delete
	Method         string
	Path           string
	IPAddress      string
	RequestID      string
	StatusCode     int
	Timestamp      time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating /api/v1 request after it completes. It must run
// after organization and role resolution. Reads are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				UserID:         auth.UserIDFromContext(ctx),
				Role:           auth.RoleFromContext(ctx),
				OrganizationID: db.OrganizationFromContext(ctx),
				Action:         action,
				Method:         req.Method,
				Path:           req.URL.Path,
				IPAddress:      c.RealIP(),
				StatusCode:     c.Response().Status,
				Timestamp:      time.Now().UTC(),
			}
			if err != nil {
				entry.StatusCode = apperr.StatusOf(err)
			}
			entry.Resource, entry.ResourceID = resourceOf(req.URL.Path)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", string(entry.Role)).
				Str("organization_id", entry.OrganizationID.String()).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("mutation")

			return err
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// resourceOf returns the innermost collection named in path and the id that
// follows it, if any:
//
//	/api/v1/bookings/<id>            -> bookings, <id>
//	/api/v1/doctors/<id>/bookings    -> bookings, ""
//	/api/v1/doctors/<id>/clinics/<c> -> clinics, <c>
func resourceOf(path string) (string, string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	resource, id := "unknown", ""
	for i := 0; i < len(segments); i++ {
		if segments[i] == "" {
			continue
		}
		if _, err := uuid.Parse(segments[i]); err == nil {
			id = segments[i]
			continue
		}
		resource, id = segments[i], ""
	}
	return resource, id
}
