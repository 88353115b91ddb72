package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/model"
	"github.com/iliyamo/medilink/internal/service"
)

// BedService is the allocation surface used by the bed endpoints.  It is
// satisfied by *service.AllocationService.
type BedService interface {
	Allocate(ctx context.Context, req service.AllocateRequest) (*model.Allocation, error)
	ConfirmAdmission(ctx context.Context, id string) (*model.AllocationDetail, error)
	Discharge(ctx context.Context, id string) (*model.Allocation, error)
	Cancel(ctx context.Context, id string) (*model.Allocation, error)
	CancelByPatient(ctx context.Context, patientID uint64, id string) (*model.Allocation, error)
	MyAllocation(ctx context.Context, patientID uint64) (*model.Allocation, error)
	IsBedOccupied(ctx context.Context, wardName string, wardNumber, bedNumber int) (bool, error)
	ListOccupiedBeds(ctx context.Context, wardName string, wardNumber int) ([]int, error)
	ListAllocationsForWard(ctx context.Context, wardName string, wardNumber int, includeDischarged bool) ([]model.AllocationDetail, error)
	ListWards(ctx context.Context) ([]*model.Ward, error)
}

// BedHandler serves the patient and staff bed endpoints.  JWT and role
// checks are done by middleware before any method runs.
type BedHandler struct {
	Beds BedService
	Log  *zap.Logger
}

func NewBedHandler(beds BedService, log *zap.Logger) *BedHandler {
	if beds == nil {
		panic("nil bed service passed to NewBedHandler")
	}
	return &BedHandler{Beds: beds, Log: orNop(log)}
}

type allocateReq struct {
	WardName string `json:"wardName"`
	WardNo   int    `json:"wardNo"`
	BedNo    int    `json:"bedNo"`
}

// Allocate handles POST /v1/beds/allocate.  The patient is always the
// token subject; a userId in the body is ignored.
func (h *BedHandler) Allocate(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req allocateReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	a, err := h.Beds.Allocate(c.Request().Context(), service.AllocateRequest{
		PatientID:  userID,
		WardName:   req.WardName,
		WardNumber: req.WardNo,
		BedNumber:  req.BedNo,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Bed successfully allocated", "allocation": a})
}

// Occupied handles GET /v1/beds/occupied and /v1/admin/beds/occupied.
func (h *BedHandler) Occupied(c echo.Context) error {
	name, no, ok := wardQuery(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "wardName and wardNo are required")
	}
	beds, err := h.Beds.ListOccupiedBeds(c.Request().Context(), name, no)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "allocatedBeds": beds})
}

// Status handles GET /v1/beds/status?wardName=&wardNo=&bedNo=.
func (h *BedHandler) Status(c echo.Context) error {
	name, no, ok := wardQuery(c)
	bed, err := strconv.Atoi(c.QueryParam("bedNo"))
	if !ok || err != nil || bed <= 0 {
		return fail(c, http.StatusBadRequest, "wardName, wardNo and bedNo are required")
	}
	occupied, err := h.Beds.IsBedOccupied(c.Request().Context(), name, no, bed)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "occupied": occupied})
}

// Mine handles GET /v1/beds/mine.
func (h *BedHandler) Mine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	a, err := h.Beds.MyAllocation(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "allocation": a})
}

// CancelMine handles POST /v1/beds/cancel with {"allocationId": "..."}.
func (h *BedHandler) CancelMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req struct {
		AllocationID string `json:"allocationId"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.AllocationID) == "" {
		return fail(c, http.StatusBadRequest, "allocationId is required")
	}
	a, err := h.Beds.CancelByPatient(c.Request().Context(), userID, strings.TrimSpace(req.AllocationID))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Bed allocation cancelled successfully", "cancelled": a})
}

// Wards handles GET /v1/wards.
func (h *BedHandler) Wards(c echo.Context) error {
	wards, err := h.Beds.ListWards(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "wards": wards})
}

// Allocations handles GET /v1/admin/beds/allocations.  Discharged records
// are included unless includeDischarged=false.
func (h *BedHandler) Allocations(c echo.Context) error {
	name, no, ok := wardQuery(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "wardName and wardNo are required")
	}
	include := true
	if v := c.QueryParam("includeDischarged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, "includeDischarged must be a boolean")
		}
		include = b
	}
	beds, err := h.Beds.ListAllocationsForWard(c.Request().Context(), name, no, include)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "beds": beds})
}

type bedIDReq struct {
	BedID string `json:"bedId"`
}

func bindBedID(c echo.Context) (string, bool) {
	var req bedIDReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	id := strings.TrimSpace(req.BedID)
	return id, id != ""
}

// Confirm handles POST /v1/admin/beds/confirm with {"bedId": "..."}.
func (h *BedHandler) Confirm(c echo.Context) error {
	id, ok := bindBedID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "bedId is required")
	}
	d, err := h.Beds.ConfirmAdmission(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	msg := "Admission confirmed"
	if d.Patient != nil {
		msg = "Admission confirmed for " + d.Patient.Name
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "allocation": d})
}

// Discharge handles POST /v1/admin/beds/discharge.
func (h *BedHandler) Discharge(c echo.Context) error {
	id, ok := bindBedID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "bedId is required")
	}
	a, err := h.Beds.Discharge(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Patient discharged successfully", "discharged": a})
}

// Cancel handles POST /v1/admin/beds/cancel.
func (h *BedHandler) Cancel(c echo.Context) error {
	id, ok := bindBedID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, "bedId is required")
	}
	a, err := h.Beds.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Bed allocation cancelled successfully", "cancelled": a})
}
