package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	IdentityKey  contextKey = "identity"
	PrincipalKey contextKey = "principal"
)

// DefaultCookieNames are the session cookies checked when no bearer token is
// sent, secure variant first.
var DefaultCookieNames = []string{"__Secure-authjs.session-token", "authjs.session-token"}

// Identity is the authenticated principal as issued by the session provider.
// It says nothing about the clinic role.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

type Claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

type SessionConfig struct {
	Secret      []byte
	Issuer      string
	CookieNames []string
	Revocations RevocationStore
	Skipper     func(c echo.Context) bool
	Logger      zerolog.Logger
}

var errRevoked = errors.New("session revoked")

// SessionMiddleware resolves the session token, if any, into an Identity on
// the request context. It never rejects: requests without a valid session
// simply carry no identity and are turned away by RequireSession or
// RequireRole where a route needs one.
func SessionMiddleware(cfg SessionConfig) echo.MiddlewareFunc {
	if len(cfg.CookieNames) == 0 {
		cfg.CookieNames = DefaultCookieNames
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			raw := tokenFromRequest(c.Request(), cfg.CookieNames)
			if raw == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			claims, err := cfg.parse(ctx, raw)
			if err != nil {
				cfg.Logger.Debug().Err(err).Str("path", c.Request().URL.Path).Msg("session rejected")
				return next(c)
			}

			c.Set("jwt_tenant_id", claims.TenantID)
			ctx = WithIdentity(ctx, &Identity{
				ID:    claims.Subject,
				Email: claims.Email,
				Name:  claims.Name,
				Image: claims.Picture,
			})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func (cfg SessionConfig) parse(ctx context.Context, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("token missing sub or email")
	}

	if cfg.Revocations != nil {
		before, err := cfg.Revocations.RevokedBefore(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if !before.IsZero() && (claims.IssuedAt == nil || claims.IssuedAt.Time.Before(before)) {
			return nil, errRevoked
		}
	}

	return claims, nil
}

func tokenFromRequest(r *http.Request, cookieNames []string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	for _, name := range cookieNames {
		if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

// IssueToken signs a session token for identity. Used by the dev token
// command and tests; production sessions come from the auth provider.
func IssueToken(secret []byte, issuer string, id Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Image,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// DevSessionMiddleware accepts an X-Dev-User email header as the identity
// when no session was resolved. Development only.
func DevSessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if IdentityFromContext(ctx) != nil {
				return next(c)
			}
			email := strings.TrimSpace(c.Request().Header.Get("X-Dev-User"))
			if email == "" {
				return next(c)
			}
			ctx = WithIdentity(ctx, &Identity{ID: "dev:" + strings.ToLower(email), Email: email, Name: email})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(IdentityKey).(*Identity)
	return id
}
