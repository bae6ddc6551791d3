package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role     Role
		action   Action
		resource Resource
		want     bool
	}{
		{RoleOwner, ActionDelete, ResourceBooking, true},
		{RoleAdmin, ActionDelete, ResourceBooking, true},
		{RoleDoctor, ActionDelete, ResourceBooking, false},
		{RoleReceptionist, ActionDelete, ResourceBooking, false},
		{RoleReceptionist, ActionCreate, ResourceBooking, true},
		{RoleReceptionist, ActionCreate, ResourceAvailability, false},
		{RoleDoctor, ActionCreate, ResourceAvailability, true},
		{RoleDoctor, ActionUpdate, ResourceBooking, true},
		{RolePatient, ActionCreate, ResourceBooking, true},
		{RolePatient, ActionUpdate, ResourceBooking, false},
		{RolePatient, ActionRead, ResourceQueue, true},
		{RolePatient, ActionCreate, ResourceMember, false},
		{Role("ghost"), ActionRead, ResourceDoctor, false},
		{Role(""), ActionRead, ResourceDoctor, false},
	}

	for _, tt := range tests {
		if got := Can(tt.role, tt.action, tt.resource); got != tt.want {
			t.Errorf("Can(%s, %s, %s) = %v, want %v", tt.role, tt.action, tt.resource, got, tt.want)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient} {
		if !r.Valid() {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if Role("nurse").Valid() {
		t.Error("expected nurse to be invalid")
	}
	if RolePatient.Staff() {
		t.Error("patient is not staff")
	}
	if !RoleReceptionist.Staff() {
		t.Error("receptionist is staff")
	}
}

func runWithRole(t *testing.T, role Role, mw echo.MiddlewareFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithIdentity(req.Context(), "user-1", role))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	return rec, err
}

func TestRequireCapability(t *testing.T) {
	rec, err := runWithRole(t, RoleReceptionist, RequireCapability(ActionCreate, ResourceBooking))
	if err != nil {
		t.Fatalf("expected receptionist to create bookings, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	_, err = runWithRole(t, RolePatient, RequireCapability(ActionDelete, ResourceBooking))
	expectStatus(t, err, http.StatusForbidden)

	_, err = runWithRole(t, "", RequireCapability(ActionRead, ResourceDoctor))
	expectStatus(t, err, http.StatusForbidden)
}
