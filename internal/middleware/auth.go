// Package middleware holds HTTP middleware for the control API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ControlAuth guards the session control routes with a shared password.
// An empty password disables the check (open demo mode). The token is
// accepted as a bearer Authorization header, an X-Auth-Token header, or
// a ?password= query parameter, so both fetch calls and plain links work.
func ControlAuth(password string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authOK(c.Request(), password) {
				return next(c)
			}
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
	}
}

func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") && auth[7:] == expected {
		return true
	}
	return false
}
