package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RoleSecretary    = "secretary"
	RoleProfessional = "professional"
)

// HasRole reports whether roles grants any of want. Admin grants everything.
func HasRole(roles []string, want ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, w := range want {
			if has == w {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireSelfOrRole lets staff with one of roles through and restricts
// professionals to routes whose param names their own professional id.
func RequireSelfOrRole(param string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if HasRole(RolesFromContext(ctx), roles...) {
				return next(c)
			}
			own := ProfessionalIDFromContext(ctx)
			if own != "" && HasRole(RolesFromContext(ctx), RoleProfessional) && strings.EqualFold(own, c.Param(param)) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "not allowed to manage this agenda")
		}
	}
}
