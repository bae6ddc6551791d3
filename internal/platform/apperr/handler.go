package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope returned to clients.
type Body struct {
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	Fields        map[string]string `json:"fields,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

type envelope struct {
	Error Body `json:"error"`
}

// HTTPErrorHandler renders every error returned by a handler as the standard
// envelope. Internal failures are logged with their cause and rendered
// generically with the request id as correlation id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		rid, _ := c.Get("request_id").(string)
		status, body := render(err)
		body.CorrelationID = rid

		if status >= http.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
			if status == http.StatusServiceUnavailable {
				c.Response().Header().Set("Retry-After", "1")
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, envelope{Error: body})
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}

func render(err error) (int, Body) {
	if ae, ok := As(err); ok {
		if ae.Kind == KindInternal {
			code := CodeInternal
			msg := "internal error"
			if ae.Retryable {
				code = CodeUnavailable
				msg = "temporarily unavailable, retry later"
			}
			return ae.HTTPStatus(), Body{Code: code, Message: msg}
		}
		return ae.HTTPStatus(), Body{Code: ae.Code, Message: ae.Message, Fields: ae.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		switch he.Code {
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType:
			return he.Code, Body{Code: CodeValidation, Message: msg}
		case http.StatusUnauthorized:
			return he.Code, Body{Code: CodeUnauthorized, Message: msg}
		case http.StatusForbidden:
			return he.Code, Body{Code: CodeForbidden, Message: msg}
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return he.Code, Body{Code: CodeNotFound, Message: msg}
		case http.StatusTooManyRequests:
			return he.Code, Body{Code: CodeRateLimited, Message: msg}
		case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return he.Code, Body{Code: CodeUnavailable, Message: msg}
		}
		if he.Code < http.StatusInternalServerError {
			return he.Code, Body{Code: strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")), Message: msg}
		}
	}

	return http.StatusInternalServerError, Body{Code: CodeInternal, Message: "internal error"}
}

// StatusOf returns the HTTP status HTTPErrorHandler would render for err.
func StatusOf(err error) int {
	status, _ := render(err)
	return status
}
