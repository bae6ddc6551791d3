package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/db"
)

// ErrNotMember is returned when the user holds no role in the organization.
var ErrNotMember = errors.New("user is not a member of the organization")

// RoleResolver maps (userId, organizationId) to the caller's role.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string, orgID uuid.UUID) (Role, error)
}

// MembershipStore keeps organization memberships in shared.organization_members.
type MembershipStore struct {
	db db.Querier
}

func NewMembershipStore(q db.Querier) *MembershipStore {
	return &MembershipStore{db: q}
}

func (s *MembershipStore) ResolveRole(ctx context.Context, userID string, orgID uuid.UUID) (Role, error) {
	var role string
	err := s.db.QueryRow(ctx,
		`SELECT role FROM shared.organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	return Role(role), nil
}

// AddMember inserts or updates a membership.
func (s *MembershipStore) AddMember(ctx context.Context, orgID uuid.UUID, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO shared.organization_members (organization_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		orgID, userID, string(role))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership. Removing an absent member is not an error.
func (s *MembershipStore) RemoveMember(ctx context.Context, orgID uuid.UUID, userID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM shared.organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// CreateOrganization registers an organization. Re-registering an existing
// id only updates its name.
func (s *MembershipStore) CreateOrganization(ctx context.Context, orgID uuid.UUID, name string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO shared.organizations (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		orgID, name)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// OrganizationIDs lists every registered organization.
func (s *MembershipStore) OrganizationIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM shared.organizations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResolveRoleMiddleware looks up the caller's role for the request's
// organization. It must run after the authentication and organization
// middleware. A role already placed on the context (development mode) is kept.
func ResolveRoleMiddleware(resolver RoleResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if RoleFromContext(ctx) != "" {
				return next(c)
			}

			userID := UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}
			orgID := db.OrganizationFromContext(ctx)
			if orgID == uuid.Nil {
				return echo.NewHTTPError(http.StatusBadRequest, "missing organization identifier")
			}

			role, err := resolver.ResolveRole(ctx, userID, orgID)
			if errors.Is(err, ErrNotMember) {
				return echo.NewHTTPError(http.StatusForbidden, "not a member of this organization")
			}
			if err != nil {
				return apperr.Internal(err)
			}
			if !role.Valid() {
				return echo.NewHTTPError(http.StatusForbidden, "unknown role")
			}

			c.Set("user_role", string(role))
			c.SetRequest(c.Request().WithContext(context.WithValue(ctx, UserRoleKey, role)))
			return next(c)
		}
	}
}
