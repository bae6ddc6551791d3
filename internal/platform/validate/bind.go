package validate

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/apperr"
)

// Bind decodes the request into dst and validates it.
func Bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("malformed request body", nil)
	}
	return c.Validate(dst)
}

// ParamUUID parses the named path parameter as a UUID.
func ParamUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid "+name, map[string]string{name: "must be a UUID"})
	}
	return id, nil
}

// QueryUUID parses an optional query parameter as a UUID. An absent parameter
// yields nil.
func QueryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid "+name, map[string]string{name: "must be a UUID"})
	}
	return &id, nil
}
