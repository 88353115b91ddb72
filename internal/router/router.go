package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/medilink/internal/handler"
	"github.com/iliyamo/medilink/internal/middleware"
)

// Guards carries the middleware shared by the route groups.  RateLimit and
// Cache may be nil, in which case they are skipped.
type Guards struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (g Guards) protected(role string) []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{middleware.JWTAuth(g.JWTSecret), middleware.RequireRole(role)}
	// limiter runs after JWTAuth so that per-user keys see the subject
	if g.RateLimit != nil {
		mws = append(mws, g.RateLimit)
	}
	return mws
}

func (g Guards) cached() []echo.MiddlewareFunc {
	if g.Cache == nil {
		return nil
	}
	return []echo.MiddlewareFunc{g.Cache}
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers the login endpoints for patients and staff.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Guards) {
	var mws []echo.MiddlewareFunc
	if g.RateLimit != nil {
		mws = append(mws, g.RateLimit)
	}
	e.POST("/v1/auth/login", a.Login, mws...)
	e.POST("/v1/admin/login", a.AdminLogin, mws...)
}
