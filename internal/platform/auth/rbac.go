package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin  = "ADMIN"
	RoleDoctor = "DOCTOR"
	RoleNurse  = "NURSE"
)

// Role sets per operation class.
var (
	ClinicalRoles = []string{RoleAdmin, RoleDoctor, RoleNurse}
	AdminOnly     = []string{RoleAdmin}
)

const forbiddenMessage = "You do not have permission to perform this action"

func IsKnownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleDoctor, RoleNurse:
		return true
	}
	return false
}

// RequireRole returns middleware that lets the request through only when the
// caller's role is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			for _, allowed := range roles {
				if role != "" && role == allowed {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, forbiddenMessage)
		}
	}
}
