package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/labstack/echo/v4"
)

const RoleSuperuser = "superuser"

// ErrNoPrincipal is returned by a PrincipalLookup when the identity has no
// clinic profile yet.
var ErrNoPrincipal = errors.New("auth: identity has no profile")

// Principal is the clinic user behind an identity.
type Principal struct {
	UserID   int64
	Email    string
	Role     string
	FullName string
}

// PrincipalLookup finds the profile for an email, case-insensitively.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, email string) (*Principal, error)
}

// RequireSession rejects requests that carry no identity.
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IdentityFromContext(c.Request().Context()) == nil {
				return apperr.Unauthenticated()
			}
			return next(c)
		}
	}
}

// RequireRole admits identities whose profile holds one of roles. With no
// roles, any profile is admitted. The resolved Principal is stored on the
// request context.
func RequireRole(lookup PrincipalLookup, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			id := IdentityFromContext(ctx)
			if id == nil {
				return apperr.Unauthenticated()
			}

			p, err := lookup.LookupPrincipal(ctx, NormalizeEmail(id.Email))
			if errors.Is(err, ErrNoPrincipal) {
				return apperr.Forbidden(forbiddenMessage(roles))
			}
			if err != nil {
				return apperr.Internal(err)
			}
			if !hasRole(p.Role, roles) {
				return apperr.Forbidden(forbiddenMessage(roles))
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

func hasRole(role string, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func forbiddenMessage(roles []string) string {
	if len(roles) == 1 && roles[0] == RoleSuperuser {
		return "Acceso denegado. Solo SuperUsuarios."
	}
	return apperr.MsgForbidden
}

// NormalizeEmail is the canonical form used for every profile lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}
