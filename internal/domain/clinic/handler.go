package clinic

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/validate"
	"github.com/clinicq/clinicq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	can := auth.RequireCapability

	api.GET("/doctors", h.ListDoctors, can(auth.ActionRead, auth.ResourceDoctor))
	api.POST("/doctors", h.CreateDoctor, can(auth.ActionCreate, auth.ResourceDoctor))
	api.GET("/doctors/:doctorId", h.GetDoctor, can(auth.ActionRead, auth.ResourceDoctor))
	api.PUT("/doctors/:doctorId", h.UpdateDoctor, can(auth.ActionUpdate, auth.ResourceDoctor))
	api.DELETE("/doctors/:doctorId", h.DeleteDoctor, can(auth.ActionDelete, auth.ResourceDoctor))
	api.GET("/doctors/:doctorId/clinics", h.ListDoctorClinics, can(auth.ActionRead, auth.ResourceClinic))

	api.GET("/clinics", h.ListClinics, can(auth.ActionRead, auth.ResourceClinic))
	api.POST("/clinics", h.CreateClinic, can(auth.ActionCreate, auth.ResourceClinic))
	api.GET("/clinics/:clinicId", h.GetClinic, can(auth.ActionRead, auth.ResourceClinic))
	api.PUT("/clinics/:clinicId", h.UpdateClinic, can(auth.ActionUpdate, auth.ResourceClinic))
	api.DELETE("/clinics/:clinicId", h.DeleteClinic, can(auth.ActionDelete, auth.ResourceClinic))
	api.POST("/clinics/:clinicId/doctors/:doctorId", h.AssignDoctor, can(auth.ActionUpdate, auth.ResourceClinic))
	api.DELETE("/clinics/:clinicId/doctors/:doctorId", h.UnassignDoctor, can(auth.ActionUpdate, auth.ResourceClinic))

	api.GET("/doctors/:doctorId/appointment-types", h.ListAppointmentTypes, can(auth.ActionRead, auth.ResourceAppointmentType))
	api.POST("/doctors/:doctorId/appointment-types", h.CreateAppointmentType, can(auth.ActionCreate, auth.ResourceAppointmentType))
	api.GET("/appointment-types/:id", h.GetAppointmentType, can(auth.ActionRead, auth.ResourceAppointmentType))
	api.PUT("/appointment-types/:id", h.UpdateAppointmentType, can(auth.ActionUpdate, auth.ResourceAppointmentType))
}

type doctorRequest struct {
	Name              string  `json:"name" validate:"required,max=255"`
	Specialty         *string `json:"specialty" validate:"omitempty,max=255"`
	YearsOfExperience int     `json:"yearsOfExperience" validate:"gte=0,lte=100"`
}

type clinicRequest struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Address   *string  `json:"address"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type appointmentTypeRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Status          string `json:"status" validate:"omitempty,oneof=active inactive"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,min=1,max=1440"`
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	d := &Doctor{Name: req.Name, Specialty: req.Specialty, YearsOfExperience: req.YearsOfExperience}
	if err := h.svc.CreateDoctor(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	var req doctorRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	d := &Doctor{ID: id, Name: req.Name, Specialty: req.Specialty, YearsOfExperience: req.YearsOfExperience}
	if err := h.svc.UpdateDoctor(c.Request().Context(), d); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDoctorClinics(c echo.Context) error {
	id, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListDoctorClinics(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

// -- Clinic Handlers --

func (h *Handler) CreateClinic(c echo.Context) error {
	var req clinicRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	cl := &Clinic{Name: req.Name, Address: req.Address, Latitude: req.Latitude, Longitude: req.Longitude}
	if err := h.svc.CreateClinic(c.Request().Context(), cl); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClinic(c echo.Context) error {
	id, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClinic(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClinics(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListClinics(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateClinic(c echo.Context) error {
	id, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	var req clinicRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	cl := &Clinic{ID: id, Name: req.Name, Address: req.Address, Latitude: req.Latitude, Longitude: req.Longitude}
	if err := h.svc.UpdateClinic(c.Request().Context(), cl); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) DeleteClinic(c echo.Context) error {
	id, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClinic(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AssignDoctor(c echo.Context) error {
	clinicID, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	a, err := h.svc.AssignDoctor(c.Request().Context(), doctorID, clinicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UnassignDoctor(c echo.Context) error {
	clinicID, err := validate.ParamUUID(c, "clinicId")
	if err != nil {
		return err
	}
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	if err := h.svc.UnassignDoctor(c.Request().Context(), doctorID, clinicID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointment Type Handlers --

func (h *Handler) CreateAppointmentType(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	var req appointmentTypeRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	t := &AppointmentType{DoctorID: doctorID, Name: req.Name, Status: req.Status, DurationMinutes: req.DurationMinutes}
	if err := h.svc.CreateAppointmentType(c.Request().Context(), t); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetAppointmentType(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetAppointmentType(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListAppointmentTypes(c echo.Context) error {
	doctorID, err := validate.ParamUUID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListAppointmentTypes(c.Request().Context(), doctorID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) UpdateAppointmentType(c echo.Context) error {
	id, err := validate.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req appointmentTypeRequest
	if err := validate.Bind(c, &req); err != nil {
		return err
	}
	status := req.Status
	if status == "" {
		status = AppointmentTypeActive
	}
	t := &AppointmentType{ID: id, Name: req.Name, Status: status, DurationMinutes: req.DurationMinutes}
	if err := h.svc.UpdateAppointmentType(c.Request().Context(), t); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
