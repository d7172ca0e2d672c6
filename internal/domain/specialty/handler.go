package specialty

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the public catalogue.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/specialties", h.List)
}

func (h *Handler) List(c echo.Context) error {
	list, err := h.repo.List(c.Request().Context())
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"specialties": list})
}
