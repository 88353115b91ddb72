package middleware

// identity.go exposes the caller identity stored by JWTAuth.  Handlers and
// the rate limiter read it through these helpers instead of raw context keys.

import "github.com/labstack/echo/v4"

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the token subject, or "" for unauthenticated requests.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the token role, or "" for unauthenticated requests.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}
