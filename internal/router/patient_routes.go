package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/medilink/internal/handler"
	"github.com/iliyamo/medilink/internal/middleware"
)

// RegisterPatient registers PATIENT-scoped bed endpoints under /v1.  The
// patient is always taken from the token, never from the request body.
func RegisterPatient(e *echo.Echo, h *handler.BedHandler, g Guards) {
	grp := e.Group("/v1", g.protected(middleware.RolePatient)...)

	grp.GET("/wards", h.Wards)
	grp.POST("/beds/allocate", h.Allocate)
	// bed grids are cached and purged on every allocation change
	grp.GET("/beds/occupied", h.Occupied, g.cached()...)
	grp.GET("/beds/status", h.Status)
	grp.GET("/beds/mine", h.Mine)
	grp.POST("/beds/cancel", h.CancelMine)
}
