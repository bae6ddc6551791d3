package booking

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/validate"
	"github.com/clinicq/clinicq/pkg/pagination"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	can := auth.RequireCapability

	api.POST("/doctors/:doctorId/bookings", h.CreateBooking, can(auth.ActionCreate, auth.ResourceBooking))
	api.POST("/bookings", h.CreateBooking, can(auth.ActionCreate, auth.ResourceBooking))
	api.GET("/doctors/:doctorId/bookings", h.ListBookings, can(auth.ActionRead, auth.ResourceBooking))
	api.GET("/bookings/:id", h.GetBooking, can(auth.ActionRead, auth.ResourceBooking))
	api.PATCH("/bookings/:id", h.UpdateBooking, can(auth.ActionUpdate, auth.ResourceBooking))
	api.DELETE("/bookings/:id", h.DeleteBooking, can(auth.ActionDelete, auth.ResourceBooking))
	api.GET("/bookings/:id/position", h.QueuePosition, can(auth.ActionRead, auth.ResourceBooking))
}

type createRequest struct {
	DoctorID          string     `json:"doctorId" validate:"omitempty,uuid"`
	ClinicID          string     `json:"clinicId" validate:"required,uuid"`
	PatientID         string     `json:"patientId" validate:"required,uuid"`
	AppointmentTypeID *string    `json:"appointmentTypeId" validate:"omitempty,uuid"`
	BookVia           string     `json:"bookVia" validate:"omitempty,oneof=web app walk_in"`
	SerialDate        string     `json:"serialDate" validate:"required,date"`
	ScheduledAt       *time.Time `json:"scheduledAt"`
}

type updateRequest struct {
	BookingStatus *string    `json:"bookingStatus" validate:"omitempty,oneof=pending confirmed cancelled completed no_show"`
	CancelNote    *string    `json:"cancelNote" validate:"omitempty,max=1000"`
	ScheduledAt   *time.Time `json:"scheduledAt"`
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req createRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}

	rawDoctor := c.Param("doctorId")
	if rawDoctor == "" {
		rawDoctor = req.DoctorID
	}
	if rawDoctor == "" {
		return apperr.Validation("doctorId is required", map[string]string{"doctorId": "is required"})
	}
	doctorID, err := uuid.Parse(rawDoctor)
	if err != nil {
		return apperr.Validation("invalid doctorId", map[string]string{"doctorId": "must be a UUID"})
	}

	ctx := c.Request().Context()
	if selfOnly(ctx) && auth.UserIDFromContext(ctx) != req.PatientID {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only book for themselves")
	}

	serialDate, err := validate.ParseDate(req.SerialDate)
	if err != nil {
		return err
	}
	cr := CreateRequest{
		DoctorID:    doctorID,
		ClinicID:    uuid.MustParse(req.ClinicID),
		PatientID:   uuid.MustParse(req.PatientID),
		BookVia:     BookVia(req.BookVia),
		SerialDate:  serialDate,
		ScheduledAt: req.ScheduledAt,
	}
	if req.AppointmentTypeID != nil {
		id := uuid.MustParse(*req.AppointmentTypeID)
		cr.AppointmentTypeID = &id
	}

	b, err := h.svc.CreateBooking(ctx, cr)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c echo.Context) error {
	b, err := h.ownBooking(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) QueuePosition(c echo.Context) error {
	b, err := h.ownBooking(c)
	if err != nil {
		return err
	}
	pos, err := h.svc.QueuePosition(c.Request().Context(), b.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pos)
}

// ownBooking loads the booking named by :id. Patients only see their own.
func (h *Handler) ownBooking(c echo.Context) (*Booking, error) {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	ctx := c.Request().Context()
	b, err := h.svc.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if selfOnly(ctx) && auth.UserIDFromContext(ctx) != b.PatientID.String() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "patients may only view their own bookings")
	}
	return b, nil
}

func (h *Handler) ListBookings(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	raw := c.QueryParam("date")
	if raw == "" {
		raw = h.now().Format(validate.DateLayout)
	}
	date, err := validate.ParseDate(raw)
	if err != nil {
		return err
	}
	f := ListFilter{DoctorID: doctorID, Date: date}
	if s := c.QueryParam("status"); s != "" {
		st := Status(s)
		if !st.Valid() {
			return apperr.Validation("invalid status", map[string]string{"status": "unknown booking status"})
		}
		f.Status = &st
	}

	ctx := c.Request().Context()
	if selfOnly(ctx) {
		self, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "patient identity is not a booking patient")
		}
		f.PatientID = &self
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBookings(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Booking{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateBooking(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	p := Patch{CancelNote: req.CancelNote, ScheduledAt: req.ScheduledAt}
	if req.BookingStatus != nil {
		st := Status(*req.BookingStatus)
		p.Status = &st
	}
	b, err := h.svc.UpdateBooking(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) DeleteBooking(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteBooking(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// selfOnly reports whether the caller may only touch their own bookings.
func selfOnly(ctx context.Context) bool {
	return !auth.RoleFromContext(ctx).Staff()
}
