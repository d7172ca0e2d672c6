package audit

import (
	"net/http"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
	"github.com/labstack/echo/v4"
)

const defaultLogLimit = 100

type Handler struct {
	logger *Logger
}

func NewHandler(logger *Logger) *Handler {
	return &Handler{logger: logger}
}

// RegisterRoutes mounts the log viewer on an already superuser-gated group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/logs", h.ListLogs)
}

func (h *Handler) ListLogs(c echo.Context) error {
	p := pagination.Parse(c, defaultLogLimit, pagination.MaxLimit)
	logs, err := h.logger.Recent(c.Request().Context(), Filter{
		Limit:      p.Limit,
		Offset:     p.Offset,
		EntityType: c.QueryParam("entity_type"),
	})
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"logs": logs})
}
