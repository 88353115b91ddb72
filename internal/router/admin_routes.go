package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/medilink/internal/handler"
	"github.com/iliyamo/medilink/internal/middleware"
)

// RegisterAdmin registers ADMIN-scoped ward and bed endpoints under
// /v1/admin.
func RegisterAdmin(e *echo.Echo, beds *handler.BedHandler, wards *handler.WardHandler, g Guards) {
	grp := e.Group("/v1/admin", g.protected(middleware.RoleAdmin)...)

	// ---- Wards ----
	grp.GET("/wards", wards.List)
	grp.POST("/wards", wards.Create)
	grp.PUT("/wards/:id", wards.Update)

	// ---- Beds ----
	grp.GET("/beds/occupied", beds.Occupied, g.cached()...)
	grp.GET("/beds/allocations", beds.Allocations)
	grp.POST("/beds/confirm", beds.Confirm)
	grp.POST("/beds/discharge", beds.Discharge)
	grp.POST("/beds/cancel", beds.Cancel)
}
