package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are routes that never need a session.
var publicPaths = map[string]bool{
	"/health":              true,
	"/health/db":           true,
	"/metrics":             true,
	"/api/superuser/check": true,
	"/api/specialties":     true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is a public route.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
