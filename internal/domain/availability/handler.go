package availability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/validate"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireCapability(auth.ActionRead, auth.ResourceAvailability)

	api.GET("/doctors/:doctorId/availability", h.ListRules, read)
	api.POST("/doctors/:doctorId/availability", h.CreateRule, auth.RequireCapability(auth.ActionCreate, auth.ResourceAvailability))
	api.GET("/availability/:id", h.GetRule, read)
	api.DELETE("/availability/:id", h.DeactivateRule, auth.RequireCapability(auth.ActionDelete, auth.ResourceAvailability))

	api.GET("/doctors/:doctorId/clinics/:clinicId/slots", h.Slots, read)
	api.GET("/doctors/:doctorId/clinics/:clinicId/next-available", h.NextAvailable, read)
}

type breakRequest struct {
	Start string `json:"start" validate:"required,hhmm"`
	End   string `json:"end" validate:"required,hhmm"`
}

type ruleRequest struct {
	ClinicID   string         `json:"clinicId" validate:"required,uuid"`
	Recurrence string         `json:"recurrence" validate:"required,oneof=daily weekly monthly"`
	DayOfWeek  *int           `json:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	DayOfMonth *int           `json:"dayOfMonth" validate:"omitempty,min=1,max=31"`
	StartTime  string         `json:"startTime" validate:"required,hhmm"`
	EndTime    string         `json:"endTime" validate:"required,hhmm"`
	Breaks     []breakRequest `json:"breaks" validate:"omitempty,dive"`
}

func (req ruleRequest) toRule(doctorID uuid.UUID) *Rule {
	start, _ := validate.ParseClock(req.StartTime)
	end, _ := validate.ParseClock(req.EndTime)
	r := &Rule{
		DoctorID:    doctorID,
		ClinicID:    uuid.MustParse(req.ClinicID),
		Recurrence:  Recurrence(req.Recurrence),
		DayOfWeek:   req.DayOfWeek,
		DayOfMonth:  req.DayOfMonth,
		StartMinute: start,
		EndMinute:   end,
		Breaks:      make([]Break, 0, len(req.Breaks)),
	}
	for _, b := range req.Breaks {
		bs, _ := validate.ParseClock(b.Start)
		be, _ := validate.ParseClock(b.End)
		r.Breaks = append(r.Breaks, Break{Start: bs, End: be})
	}
	return r
}

func (h *Handler) CreateRule(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	var req ruleRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	rule := req.toRule(doctorID)
	if err := h.svc.CreateRule(c.Request().Context(), rule); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rule, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) ListRules(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	includeInactive, _ := strconv.ParseBool(c.QueryParam("includeInactive"))
	rules, err := h.svc.ListRules(c.Request().Context(), doctorID, includeInactive)
	if err != nil {
		return err
	}
	if rules == nil {
		rules = []*Rule{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rules})
}

func (h *Handler) DeactivateRule(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeactivateRule(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// dateParam parses an optional YYYY-MM-DD query parameter, defaulting to today.
func (h *Handler) dateParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		raw = h.now().Format(validate.DateLayout)
	}
	d, err := validate.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid "+name, map[string]string{name: "must be YYYY-MM-DD"})
	}
	return d, nil
}

func (h *Handler) Slots(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	clinicID, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	date, err := h.dateParam(c, "date")
	if err != nil {
		return err
	}
	typeID, err := validate.QueryUUID(c, "appointmentTypeId")
	if err != nil {
		return err
	}
	day, err := h.svc.Slots(c.Request().Context(), doctorID, clinicID, date, typeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) NextAvailable(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	clinicID, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	from, err := h.dateParam(c, "from")
	if err != nil {
		return err
	}
	maxDays := 0
	if raw := c.QueryParam("maxDays"); raw != "" {
		maxDays, err = strconv.Atoi(raw)
		if err != nil || maxDays <= 0 {
			return apperr.Validation("invalid maxDays", map[string]string{"maxDays": "must be a positive integer"})
		}
	}
	typeID, err := validate.QueryUUID(c, "appointmentTypeId")
	if err != nil {
		return err
	}
	day, err := h.svc.NextAvailableDate(c.Request().Context(), doctorID, clinicID, from, maxDays, typeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, day)
}
