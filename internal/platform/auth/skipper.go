package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass the bearer token check. Route patterns, not raw URLs.
var publicPaths = map[string]bool{
	"/health":          true,
	"/health/db":       true,
	"/api/users/login": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it to JWTMiddleware.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
