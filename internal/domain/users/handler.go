package users

import (
	"net/http"
	"strconv"

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

// RegisterRoutes mounts the profile and bootstrap routes on api and the user
// administration routes on su, which must already be superuser-gated.
func (h *Handler) RegisterRoutes(api *echo.Group, su *echo.Group) {
	api.GET("/superuser/check", h.Check)
	api.GET("/profile", h.GetProfile, auth.RequireSession())
	api.PUT("/profile", h.SaveProfile, auth.RequireSession())

	su.GET("/users", h.List)
	su.POST("/users", h.Create)
	su.PUT("/users/:id", h.Update)
	su.DELETE("/users/:id", h.Delete)
}

func (h *Handler) Check(c echo.Context) error {
	state, err := h.svc.BootstrapState(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (h *Handler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return apperr.Unauthenticated()
	}
	u, err := h.svc.Profile(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u, "authUser": id})
}

func (h *Handler) SaveProfile(c echo.Context) error {
	ctx := c.Request().Context()
	id := auth.IdentityFromContext(ctx)
	if id == nil {
		return apperr.Unauthenticated()
	}
	var in ProfileInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.SaveProfile(ctx, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) List(c echo.Context) error {
	list, err := h.svc.List(c.Request().Context(), Filter{
		Role:   c.QueryParam("role"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"users": list})
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var in CreateUserInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"user": u})
}

func (h *Handler) Update(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in UpdateUserInput
	if err := validate.Bind(c, &in); err != nil {
		return err
	}
	u, changed, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return err
	}
	if !changed {
		return c.JSON(http.StatusOK, map[string]any{"message": msgNoChanges, "user": u})
	}
	return c.JSON(http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Usuario eliminado"})
}

func principal(c echo.Context) (*auth.Principal, error) {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return nil, apperr.Unauthenticated()
	}
	return p, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("ID inválido")
	}
	return id, nil
}
