package db

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	OrganizationIDKey contextKey = "organization_id"
	DBConnKey         contextKey = "db_conn"
)

// OrganizationHeader selects the organization when the token carries no claim.
const OrganizationHeader = "X-Organization-ID"

// SharedSchema holds the organization registry and memberships.
const SharedSchema = "shared"

// SchemaName returns the PostgreSQL schema holding an organization's data.
func SchemaName(orgID uuid.UUID) string {
	return "org_" + strings.ReplaceAll(orgID.String(), "-", "")
}

// OrganizationMiddleware resolves the organization for the request and stores
// it on the context without pinning a database connection. Long-lived routes
// (queue streams) use this instead of TenantMiddleware.
func OrganizationMiddleware(defaultOrg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orgID, err := resolveOrganization(c, defaultOrg)
			if err != nil {
				return err
			}
			ctx := context.WithValue(c.Request().Context(), OrganizationIDKey, orgID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("organization_id", orgID.String())
			return next(c)
		}
	}
}

// TenantMiddleware acquires a pooled connection, points its search_path at the
// organization schema and makes it available to repositories for the lifetime
// of the request.
func TenantMiddleware(pool *pgxpool.Pool, defaultOrg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orgID, err := resolveOrganization(c, defaultOrg)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, shared, public", SchemaName(orgID)))
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "organization resolution failed")
			}
			// Reset before the connection returns to the pool.
			defer func() {
				_, _ = conn.Exec(context.Background(), "RESET search_path")
			}()

			ctx = context.WithValue(ctx, OrganizationIDKey, orgID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("organization_id", orgID.String())
			c.Set("db", conn)

			return next(c)
		}
	}
}

func resolveOrganization(c echo.Context, defaultOrg string) (uuid.UUID, error) {
	raw := extractOrganizationID(c, defaultOrg)
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "missing organization identifier")
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid organization identifier")
	}
	return orgID, nil
}

func extractOrganizationID(c echo.Context, defaultOrg string) string {
	// 1. Check JWT claim (set by auth middleware)
	if oid, ok := c.Get("jwt_org_id").(string); ok && oid != "" {
		return oid
	}

	// 2. Check X-Organization-ID header
	if oid := c.Request().Header.Get(OrganizationHeader); oid != "" {
		return oid
	}

	return defaultOrg
}

// ConnFromContext retrieves the organization-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// OrganizationFromContext retrieves the organization ID from context.
func OrganizationFromContext(ctx context.Context) uuid.UUID {
	oid, _ := ctx.Value(OrganizationIDKey).(uuid.UUID)
	return oid
}

// WithOrganization stores orgID on ctx. Used by background jobs and tests.
func WithOrganization(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, OrganizationIDKey, orgID)
}

// CreateOrganizationSchema creates the schema for an organization and runs
// the tenant migrations against it. If migrationsDir is empty, migrations are
// skipped.
func CreateOrganizationSchema(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, migrationsDir string) (string, error) {
	if orgID == uuid.Nil {
		return "", fmt.Errorf("invalid organization identifier: %s", orgID)
	}

	schema := SchemaName(orgID)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	if err != nil {
		return "", fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return "", fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return schema, nil
}
