package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

// JWTMiddleware rejects requests without a bearer token with 401 and
// requests whose token does not verify with 403. On success the caller's
// identity is stored on the request context and on the echo context.
func JWTMiddleware(v TokenVerifier, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			tokenStr := bearerToken(c.Request().Header.Get("Authorization"))
			if tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
			}

			id, err := v.Verify(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "invalid or expired token")
			}

			c.Set(string(UserIDKey), id.UserID)
			c.Set(string(UserRoleKey), id.Role)
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), *id)))

			return next(c)
		}
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Any other shape yields "".
func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, UserRoleKey, id.Role)
}

func UserIDFromContext(ctx context.Context) int64 {
	uid, _ := ctx.Value(UserIDKey).(int64)
	return uid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}

// IdentityFromContext returns the authenticated caller, or false when the
// request never passed through JWTMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id := Identity{UserID: UserIDFromContext(ctx), Role: RoleFromContext(ctx)}
	return id, id.UserID > 0
}
