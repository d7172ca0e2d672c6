package backup

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

// RegisterRoutes mounts export and restore on the superuser group. restore
// middleware applies to the restore route only.
func (h *Handler) RegisterRoutes(su *echo.Group, restore ...echo.MiddlewareFunc) {
	su.GET("/backup", h.Export)
	su.POST("/backup", h.Restore, restore...)
}

func (h *Handler) Export(c echo.Context) error {
	snap, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Restore(c echo.Context) error {
	var in RestoreInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	var actorID *int64
	if p := auth.PrincipalFromContext(ctx); p != nil {
		actorID = &p.UserID
	}
	counts, err := h.svc.Restore(ctx, actorID, in.Data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "restored": counts})
}
