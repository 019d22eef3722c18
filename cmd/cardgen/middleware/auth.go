package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireAccessCode guards admin endpoints (manual trigger, run history)
// with a shared-secret bearer credential.
//
// Accepts either `Authorization: Bearer <code>` or `?key=<code>` (the
// query form is used by browser-driven admin pages).
func RequireAccessCode(accessCode string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if accessCode == "" {
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"error": "access code not configured",
				})
			}

			provided := tokenFromRequest(c)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(accessCode)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "unauthorized",
				})
			}

			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.QueryParam("key")
}
