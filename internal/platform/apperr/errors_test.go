package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Unauthenticated(), http.StatusUnauthorized},
		{Forbidden(""), http.StatusForbidden},
		{NotFound("Paciente no encontrado"), http.StatusNotFound},
		{Conflict("duplicado"), http.StatusConflict},
		{BadRequest("falta cedula"), http.StatusBadRequest},
		{TooManyRequests("espere"), http.StatusTooManyRequests},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{New(Code("unknown"), "x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", Conflict("ya existe"))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, e.Code)
	assert.Equal(t, CodeConflict, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestResolve_NeverLeaksCause(t *testing.T) {
	cause := errors.New(`pq: relation "users" does not exist`)

	status, msg := Resolve(Internal(cause))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, MsgInternal, msg)

	status, msg = Resolve(cause)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, MsgInternal, msg)

	status, msg = Resolve(echo.NewHTTPError(http.StatusInternalServerError, cause.Error()))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, MsgInternal, msg)
}

func TestResolve_EchoHTTPError(t *testing.T) {
	status, msg := Resolve(echo.NewHTTPError(http.StatusBadRequest, "id inválido"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "id inválido", msg)

	status, msg = Resolve(echo.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", msg)
}

func TestHTTPErrorHandler_WritesJSON(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler(zerolog.Nop())
	e.GET("/x", func(c echo.Context) error {
		return Forbidden("Acceso denegado. Solo SuperUsuarios.")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Acceso denegado. Solo SuperUsuarios.", body.Error)
}
