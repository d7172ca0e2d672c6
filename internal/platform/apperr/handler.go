package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error string `json:"error"`
}

// HTTPErrorHandler renders errors as {"error": "..."}. Server-side failures
// are logged with their cause and rendered with the generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := Resolve(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, Body{Error: msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// Resolve maps err to a status code and a client-safe message.
func Resolve(err error) (int, string) {
	if e, ok := As(err); ok {
		if e.Code == CodeInternal || e.Message == "" {
			return e.Status(), MsgInternal
		}
		return e.Status(), e.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusInternalServerError {
			return he.Code, MsgInternal
		}
		if s, ok := he.Message.(string); ok && s != "" {
			return he.Code, s
		}
		if he.Message != nil {
			return he.Code, fmt.Sprint(he.Message)
		}
		return he.Code, http.StatusText(he.Code)
	}

	return http.StatusInternalServerError, MsgInternal
}
