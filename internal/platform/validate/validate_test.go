package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

type sample struct {
	ClinicID   string `json:"clinicId" validate:"required,uuid"`
	SerialDate string `json:"serialDate" validate:"required,date"`
	BookVia    string `json:"bookVia" validate:"omitempty,oneof=web app walk_in"`
	Start      string `json:"start" validate:"omitempty,hhmm"`
}

func TestValidate_OK(t *testing.T) {
	err := New().Validate(&sample{
		ClinicID:   "6f1c2a0e-3b4d-4e5f-8a9b-0c1d2e3f4a5b",
		SerialDate: "2025-06-02",
		BookVia:    "walk_in",
		Start:      "09:30",
	})
	assert.NoError(t, err)
}

func TestValidate_FieldMap(t *testing.T) {
	err := New().Validate(&sample{ClinicID: "nope", SerialDate: "2025-6-2", BookVia: "fax", Start: "25:00"})
	require.Error(t, err)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "must be a UUID", ae.Fields["clinicId"])
	assert.Equal(t, "must be YYYY-MM-DD", ae.Fields["serialDate"])
	assert.Equal(t, "must be one of: web app walk_in", ae.Fields["bookVia"])
	assert.Equal(t, "must be HH:MM", ae.Fields["start"])
}

func TestValidate_Required(t *testing.T) {
	err := New().Validate(&sample{})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "required", ae.Fields["clinicId"])
	assert.Equal(t, "required", ae.Fields["serialDate"])
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:15", 555, true},
		{"23:59", 1439, true},
		{"24:00", 1440, true},
		{"24:01", 0, false},
		{"9:15", 0, false},
		{"09:60", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "Monday", d.Weekday().String())

	for _, bad := range []string{"2025-6-2", "2025-02-30", "02-06-2025", "2025-06-02T00:00:00Z", ""} {
		_, err := ParseDate(bad)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), bad)
	}
}

type bindTarget struct {
	Name string `json:"name" validate:"required"`
}

func TestBind(t *testing.T) {
	e := echo.New()
	e.Validator = New()

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		var dst bindTarget
		require.NoError(t, Bind(c, &dst))
		assert.Equal(t, "x", dst.Name)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		var dst bindTarget
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(Bind(c, &dst)))
	})

	t.Run("missing field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		var dst bindTarget
		err := Bind(c, &dst)
		ae, ok := apperr.As(err)
		require.True(t, ok)
		assert.Contains(t, ae.Fields, "name")
	})
}

func TestParamUUID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	_, err := ParamUUID(c, "id")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	id := uuid.New()
	c.SetParamValues(id.String())
	got, err := ParamUUID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "09:05", FormatClock(545))
	assert.Equal(t, "24:00", FormatClock(1440))
	for _, s := range []string{"07:30", "12:00", "23:59"} {
		m, ok := ParseClock(s)
		require.True(t, ok)
		assert.Equal(t, s, FormatClock(m))
	}
}
