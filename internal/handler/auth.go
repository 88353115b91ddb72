package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/config"
	"github.com/iliyamo/medilink/internal/middleware"
	"github.com/iliyamo/medilink/internal/model"
	"github.com/iliyamo/medilink/internal/repository"
	"github.com/iliyamo/medilink/internal/utils"
)

// PatientFinder resolves patients at login.  It is satisfied by
// *repository.PatientRepo.
type PatientFinder interface {
	GetByEmail(ctx context.Context, email string) (model.Patient, error)
}

// AuthHandler issues access tokens to patients and staff.
type AuthHandler struct {
	Cfg      config.Config
	Patients PatientFinder
	Log      *zap.Logger
}

func NewAuthHandler(cfg config.Config, patients PatientFinder, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Patients: patients, Log: orNop(log)}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

func (r *loginReq) bind(c echo.Context) bool {
	if err := c.Bind(r); err != nil {
		return false
	}
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r.Email != "" && r.Password != ""
}

// Login handles POST /v1/auth/login for patients.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if !req.bind(c) {
		return fail(c, http.StatusBadRequest, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Patients.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid credentials")
		}
		h.Log.Error("load patient for login", zap.Error(err))
		return fail(c, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	if !utils.VerifyPassword(p.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	return h.issue(c, strconv.FormatUint(p.ID, 10), middleware.RolePatient, echo.Map{
		"id": p.ID, "name": p.Name, "email": p.Email,
	})
}

// AdminLogin handles POST /v1/admin/login.  Staff credentials come from
// ADMIN_EMAIL and ADMIN_PASSWORD_HASH; staff tokens carry subject "0".
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req loginReq
	if !req.bind(c) {
		return fail(c, http.StatusBadRequest, "email/password required")
	}
	if h.Cfg.AdminEmail == "" || h.Cfg.AdminPasswordHash == "" {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	if req.Email != strings.ToLower(h.Cfg.AdminEmail) || !utils.VerifyPassword(h.Cfg.AdminPasswordHash, req.Password) {
		h.Log.Warn("failed staff login", zap.String("remote_ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}
	return h.issue(c, "0", middleware.RoleAdmin, echo.Map{"email": req.Email})
}

func (h *AuthHandler) issue(c echo.Context, subject, role string, user echo.Map) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, subject, role, h.Cfg.AccessTTLMin)
	if err != nil {
		h.Log.Error("sign access token", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "issue access failed")
	}
	user["role"] = role
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
		"access":  tokenPart{Token: access.Token, Expires: access.Exp},
	})
}
