package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Role is an organization-scoped membership role.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RolePatient      Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient:
		return true
	}
	return false
}

// Staff reports whether the role acts on behalf of the organization rather
// than a single patient.
func (r Role) Staff() bool {
	return r.Valid() && r != RolePatient
}

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Resource string

const (
	ResourceBooking         Resource = "booking"
	ResourceAvailability    Resource = "availability"
	ResourceDoctor          Resource = "doctor"
	ResourceClinic          Resource = "clinic"
	ResourceAppointmentType Resource = "appointment_type"
	ResourceQueue           Resource = "queue"
	ResourceMember          Resource = "member"
)

type grant struct {
	resource Resource
	actions  []Action
}

var (
	crud = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	read = []Action{ActionRead}
)

// capabilities is the organization role model. Owners and admins hold every
// capability; booking hard deletes are reserved to them.
var capabilities = buildCapabilities(map[Role][]grant{
	RoleDoctor: {
		{ResourceBooking, []Action{ActionRead, ActionUpdate}},
		{ResourceAvailability, crud},
		{ResourceAppointmentType, []Action{ActionCreate, ActionRead, ActionUpdate}},
		{ResourceDoctor, read},
		{ResourceClinic, read},
		{ResourceQueue, read},
	},
	RoleReceptionist: {
		{ResourceBooking, []Action{ActionCreate, ActionRead, ActionUpdate}},
		{ResourceAvailability, read},
		{ResourceAppointmentType, read},
		{ResourceDoctor, read},
		{ResourceClinic, read},
		{ResourceQueue, read},
	},
	RolePatient: {
		{ResourceBooking, []Action{ActionCreate, ActionRead}},
		{ResourceAvailability, read},
		{ResourceAppointmentType, read},
		{ResourceDoctor, read},
		{ResourceClinic, read},
		{ResourceQueue, read},
	},
})

func buildCapabilities(grants map[Role][]grant) map[Role]map[Resource]map[Action]bool {
	out := make(map[Role]map[Resource]map[Action]bool, len(grants))
	for role, gs := range grants {
		out[role] = make(map[Resource]map[Action]bool, len(gs))
		for _, g := range gs {
			acts := make(map[Action]bool, len(g.actions))
			for _, a := range g.actions {
				acts[a] = true
			}
			out[role][g.resource] = acts
		}
	}
	return out
}

// Can reports whether role may perform action on resource.
func Can(role Role, action Action, resource Resource) bool {
	if role == RoleOwner || role == RoleAdmin {
		return true
	}
	return capabilities[role][resource][action]
}

// RequireCapability returns middleware that rejects callers whose resolved
// role lacks the capability.
func RequireCapability(action Action, resource Resource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == "" {
				return echo.NewHTTPError(http.StatusForbidden, "no role in organization")
			}
			if !Can(role, action, resource) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("role %s cannot %s %s", role, action, resource))
			}
			return next(c)
		}
	}
}
