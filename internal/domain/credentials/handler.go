package credentials

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts change-password on the superuser group. limit is
// applied to that route only.
func (h *Handler) RegisterRoutes(su *echo.Group, limit ...echo.MiddlewareFunc) {
	su.POST("/change-password", h.ChangePassword, limit...)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var in ChangePasswordInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return apperr.Unauthenticated()
	}
	if err := h.svc.ChangePassword(ctx, id, auth.PrincipalFromContext(ctx), in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// LimitKey keys the change-password rate limit by session subject.
func LimitKey(c echo.Context) string {
	if id := auth.IdentityFromContext(c.Request().Context()); id != nil {
		return id.ID
	}
	return ""
}
