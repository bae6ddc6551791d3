package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/validate"
)

type identity struct {
	userID string
	role   auth.Role
}

// newTestServer registers the booking routes behind a middleware that
// installs the caller's identity and organization.
func newTestServer(t *testing.T, who *identity) (*fixture, *echo.Echo) {
	t.Helper()
	f := newFixture()
	h := NewHandler(f.svc)
	h.now = func() time.Time { return time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC) }

	e := echo.New()
	e.Validator = validate.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), who.userID, who.role)
			ctx = db.WithOrganization(ctx, testOrg)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return f, e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func createBody(patientID uuid.UUID) string {
	return `{"clinicId":"` + testClinic.String() + `","patientId":"` + patientID.String() + `","serialDate":"2025-06-02"}`
}

func TestHandler_CreateBooking(t *testing.T) {
	_, e := newTestServer(t, &identity{"recept-1", auth.RoleReceptionist})

	rec := do(e, http.MethodPost, "/api/v1/doctors/"+testDoctor.String()+"/bookings", createBody(testPatient))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(1), got["dailySerial"])
	assert.Equal(t, "pending", got["bookingStatus"])
	assert.Equal(t, "2025-06-02", got["serialDate"])
	assert.Equal(t, "web", got["bookVia"])
}

func TestHandler_CreateBooking_Alias(t *testing.T) {
	_, e := newTestServer(t, &identity{"recept-1", auth.RoleReceptionist})

	body := `{"doctorId":"` + testDoctor.String() + `","clinicId":"` + testClinic.String() +
		`","patientId":"` + testPatient.String() + `","serialDate":"2025-06-02","bookVia":"walk_in"}`
	rec := do(e, http.MethodPost, "/api/v1/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/bookings", createBody(testPatient))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "doctorId")
}

func TestHandler_CreateBooking_Invalid(t *testing.T) {
	_, e := newTestServer(t, &identity{"recept-1", auth.RoleReceptionist})
	path := "/api/v1/doctors/" + testDoctor.String() + "/bookings"

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed date", `{"clinicId":"` + testClinic.String() + `","patientId":"` + testPatient.String() + `","serialDate":"2025-6-2"}`, "serialDate"},
		{"missing clinic", `{"patientId":"` + testPatient.String() + `","serialDate":"2025-06-02"}`, "clinicId"},
		{"bad bookVia", `{"clinicId":"` + testClinic.String() + `","patientId":"` + testPatient.String() + `","serialDate":"2025-06-02","bookVia":"fax"}`, "bookVia"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Error.Fields, tt.field)
		})
	}
}

func TestHandler_CreateBooking_NoAvailability(t *testing.T) {
	f, e := newTestServer(t, &identity{"recept-1", auth.RoleReceptionist})
	f.sched.rule = nil

	rec := do(e, http.MethodPost, "/api/v1/doctors/"+testDoctor.String()+"/bookings", createBody(testPatient))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeNoAvailability, decodeError(t, rec).Error.Code)
}

func TestSelfOnly(t *testing.T) {
	for role, want := range map[auth.Role]bool{
		auth.RolePatient:      true,
		"":                    true,
		auth.RoleReceptionist: false,
		auth.RoleDoctor:       false,
		auth.RoleOwner:        false,
	} {
		ctx := auth.WithIdentity(context.Background(), "u-1", role)
		assert.Equal(t, want, selfOnly(ctx), "role %q", role)
	}
}

func TestHandler_PatientBooksOnlyForSelf(t *testing.T) {
	_, e := newTestServer(t, &identity{testPatient.String(), auth.RolePatient})
	path := "/api/v1/doctors/" + testDoctor.String() + "/bookings"

	rec := do(e, http.MethodPost, path, createBody(uuid.New()))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodPost, path, createBody(testPatient))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandler_PatientReadsOnlyOwnBooking(t *testing.T) {
	f, e := newTestServer(t, &identity{uuid.NewString(), auth.RolePatient})
	b, err := f.svc.CreateBooking(f.ctx, f.request())
	require.NoError(t, err)

	rec := do(e, http.MethodGet, "/api/v1/bookings/"+b.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(e, http.MethodGet, "/api/v1/bookings/"+b.ID.String()+"/position", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_GetBookingAndPosition(t *testing.T) {
	f, e := newTestServer(t, &identity{testPatient.String(), auth.RolePatient})
	var last *Booking
	for i := 0; i < 2; i++ {
		b, err := f.svc.CreateBooking(f.ctx, f.request())
		require.NoError(t, err)
		last = b
	}

	rec := do(e, http.MethodGet, "/api/v1/bookings/"+last.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/bookings/"+last.ID.String()+"/position", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pos map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, float64(2), pos["position"])
	assert.Equal(t, float64(15), pos["estimatedWaitMinutes"])

	rec = do(e, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeBookingNotFound, decodeError(t, rec).Error.Code)
}

func TestHandler_UpdateBooking(t *testing.T) {
	f, e := newTestServer(t, &identity{"doc-1", auth.RoleDoctor})
	b, err := f.svc.CreateBooking(f.ctx, f.request())
	require.NoError(t, err)
	path := "/api/v1/bookings/" + b.ID.String()

	rec := do(e, http.MethodPatch, path, `{"bookingStatus":"completed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeInvalidTransition, decodeError(t, rec).Error.Code)

	rec = do(e, http.MethodPatch, path, `{"bookingStatus":"cancelled"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "cancelNote")

	rec = do(e, http.MethodPatch, path, `{"bookingStatus":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPatch, path, `{"bookingStatus":"cancelled","cancelNote":"clinic closed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cancelled", got["bookingStatus"])
	assert.Equal(t, "clinic closed", got["cancelNote"])
}

func TestHandler_PatientCannotUpdateOrDelete(t *testing.T) {
	f, e := newTestServer(t, &identity{testPatient.String(), auth.RolePatient})
	b, err := f.svc.CreateBooking(f.ctx, f.request())
	require.NoError(t, err)

	rec := do(e, http.MethodPatch, "/api/v1/bookings/"+b.ID.String(), `{"bookingStatus":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(e, http.MethodDelete, "/api/v1/bookings/"+b.ID.String(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_DeleteBooking_AdminOnly(t *testing.T) {
	who := &identity{"recept-1", auth.RoleReceptionist}
	f, e := newTestServer(t, who)
	b, err := f.svc.CreateBooking(f.ctx, f.request())
	require.NoError(t, err)
	path := "/api/v1/bookings/" + b.ID.String()

	rec := do(e, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	who.role = auth.RoleAdmin
	rec = do(e, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = f.svc.GetBooking(f.ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	rec = do(e, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListBookings(t *testing.T) {
	f, e := newTestServer(t, &identity{"recept-1", auth.RoleReceptionist})
	other := uuid.New()
	for _, p := range []uuid.UUID{testPatient, other, testPatient} {
		req := f.request()
		req.PatientID = p
		_, err := f.svc.CreateBooking(f.ctx, req)
		require.NoError(t, err)
	}
	path := "/api/v1/doctors/" + testDoctor.String() + "/bookings"

	// No date: defaults to today.
	rec := do(e, http.MethodGet, path+"?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data    []map[string]interface{} `json:"data"`
		Total   int                      `json:"total"`
		HasMore bool                     `json:"has_more"`
		Links   struct {
			Next string `json:"next"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Contains(t, page.Links.Next, "offset=2")

	rec = do(e, http.MethodGet, path+"?date=2025-06-02&status=confirmed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Data)

	rec = do(e, http.MethodGet, path+"?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodGet, path+"?date=06/02/2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListBookings_PatientSeesOwn(t *testing.T) {
	f, e := newTestServer(t, &identity{testPatient.String(), auth.RolePatient})
	for _, p := range []uuid.UUID{testPatient, uuid.New()} {
		req := f.request()
		req.PatientID = p
		_, err := f.svc.CreateBooking(f.ctx, req)
		require.NoError(t, err)
	}

	rec := do(e, http.MethodGet, "/api/v1/doctors/"+testDoctor.String()+"/bookings?date=2025-06-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
}
