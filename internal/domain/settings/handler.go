package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the settings routes on the superuser group.
func (h *Handler) RegisterRoutes(su *echo.Group) {
	su.GET("/settings", h.List)
	su.POST("/settings", h.Set)
}

func (h *Handler) List(c echo.Context) error {
	all, err := h.svc.All(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"settings": all})
}

func (h *Handler) Set(c echo.Context) error {
	var in SetInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Set(ctx, auth.PrincipalFromContext(ctx), in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
