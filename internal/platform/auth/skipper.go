package auth

import (
	"slices"

	"github.com/labstack/echo/v4"
)

// Public routes bypass authentication and tenant resolution.
var publicRoutes = []string{"/health", "/health/db", "/metrics"}

func IsPublicPath(path string) bool { return slices.Contains(publicRoutes, path) }

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool { return IsPublicPath(c.Path()) }
