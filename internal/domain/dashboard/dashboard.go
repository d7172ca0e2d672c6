// Package dashboard aggregates the superuser overview.
package dashboard

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/domain/users"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/audit"
)

const recentActivityLimit = 10

type UserCounter interface {
	CountByRole(ctx context.Context) (map[users.Role]int, error)
}

type PatientCounter interface {
	Count(ctx context.Context) (int, error)
}

type Stats struct {
	Users          map[users.Role]int `json:"users"`
	TotalUsers     int                `json:"totalUsers"`
	Patients       int                `json:"patients"`
	RecentActivity []*audit.EntryView `json:"recentActivity"`
}

type Service struct {
	users    UserCounter
	patients PatientCounter
	audit    *audit.Logger
}

func NewService(u UserCounter, p PatientCounter, auditLogger *audit.Logger) *Service {
	return &Service{users: u, patients: p, audit: auditLogger}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	st := &Stats{Users: counts}
	for _, n := range counts {
		st.TotalUsers += n
	}

	if st.Patients, err = s.patients.Count(ctx); err != nil {
		return nil, apperr.Internal(err)
	}

	st.RecentActivity, err = s.audit.Recent(ctx, audit.Filter{Limit: recentActivityLimit})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if st.RecentActivity == nil {
		st.RecentActivity = []*audit.EntryView{}
	}
	return st, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(su *echo.Group) {
	su.GET("/stats", h.Stats)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
