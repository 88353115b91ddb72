package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/model"
)

// WardManager is satisfied by *service.WardService.
type WardManager interface {
	List(ctx context.Context) ([]*model.Ward, error)
	Create(ctx context.Context, w *model.Ward) error
	Update(ctx context.Context, w *model.Ward) error
}

// WardHandler serves the staff ward catalog endpoints.
type WardHandler struct {
	Wards WardManager
	Log   *zap.Logger
}

func NewWardHandler(wards WardManager, log *zap.Logger) *WardHandler {
	if wards == nil {
		panic("nil ward manager passed to NewWardHandler")
	}
	return &WardHandler{Wards: wards, Log: orNop(log)}
}

type wardReq struct {
	WardName     string           `json:"wardName"`
	WardCategory string           `json:"wardCategory"`
	WardNumbers  []model.WardRoom `json:"wardNumbers"`
	Features     []string         `json:"features"`
}

func (r wardReq) toModel() *model.Ward {
	return &model.Ward{Name: r.WardName, Category: r.WardCategory, Rooms: r.WardNumbers, Features: r.Features}
}

// List handles GET /v1/admin/wards.
func (h *WardHandler) List(c echo.Context) error {
	wards, err := h.Wards.List(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "wards": wards})
}

// Create handles POST /v1/admin/wards.
func (h *WardHandler) Create(c echo.Context) error {
	var req wardReq
	if err := c.Bind(&req); err != nil || req.WardNumbers == nil {
		return fail(c, http.StatusBadRequest, "Invalid input format")
	}
	w := req.toModel()
	if err := h.Wards.Create(c.Request().Context(), w); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Ward created successfully", "ward": w})
}

// Update handles PUT /v1/admin/wards/:id.
func (h *WardHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "invalid ward id")
	}
	var req wardReq
	if err := c.Bind(&req); err != nil || req.WardNumbers == nil {
		return fail(c, http.StatusBadRequest, "Invalid input format")
	}
	w := req.toModel()
	w.ID = id
	if err := h.Wards.Update(c.Request().Context(), w); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Ward updated successfully", "ward": w})
}
